// Package filexfer implements the host side of the file-transfer session
// (§4.6): a stateful upload sub-protocol with an existence-confirmation
// round trip, and a download sub-protocol that streams file contents — a
// single file's, or a whole directory tree's — in fixed-size chunks.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package filexfer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

// ChunkSize is the fixed transfer chunk size mandated by the wire protocol.
const ChunkSize = 65536

type uploadState int

const (
	stateIdle uploadState = iota
	stateAwaitingConfirm
	stateWriting
)

// handler carries the upload sub-state-machine across inbox messages; a
// download is stateless across messages since it runs to completion inside
// one dispatch of RequestDownload.
type handler struct {
	sessionID string
	out       chan<- protocol.Envelope

	state       uploadState
	pendingPath string
	pendingSize uint64
	dest        *os.File
	uploadTotal uint64
	uploadDone  uint64
}

// Handle implements session.HandlerFunc for protocol.FileTransfer.
func Handle(_ context.Context, sessionID string, inbox *session.Inbox, out chan<- protocol.Envelope) {
	h := &handler{sessionID: sessionID, out: out}
	for {
		msg, ok := inbox.Recv()
		if !ok {
			h.abortUpload()
			return
		}
		if h.dispatch(msg) {
			h.abortUpload()
			return
		}
	}
}

// dispatch processes one inbox message and returns true if the session
// should terminate.
func (h *handler) dispatch(msg protocol.ClientMessage) (done bool) {
	switch m := msg.(type) {
	case protocol.StartUpload:
		h.startUpload(m)
	case protocol.ConfirmResponse:
		h.confirmResponse(m)
	case protocol.FileChunkC:
		h.writeChunk(m)
	case protocol.EndUpload:
		h.endUpload()
	case protocol.RequestDownload:
		h.download(m.Path)
	case protocol.Disconnect:
		return true
	default:
		h.sendError("unexpected message for file-transfer session")
	}
	return false
}

func (h *handler) startUpload(m protocol.StartUpload) {
	if h.state != stateIdle {
		h.sendError("upload already in progress")
		return
	}
	if info, err := os.Stat(m.Path); err == nil && info.IsDir() {
		h.sendError("cannot upload onto an existing directory: " + m.Path)
		return
	}
	if !m.Force {
		if info, err := os.Stat(m.Path); err == nil && !info.IsDir() {
			h.pendingPath = m.Path
			h.pendingSize = m.Size
			h.state = stateAwaitingConfirm
			h.send(protocol.ConfirmPrompt{Message: "File '" + m.Path + "' already exists. Overwrite?"})
			return
		}
	}
	h.openDestination(m.Path, m.Size)
}

func (h *handler) confirmResponse(m protocol.ConfirmResponse) {
	if h.state != stateAwaitingConfirm {
		h.sendError("no confirmation pending")
		return
	}
	path, size := h.pendingPath, h.pendingSize
	h.pendingPath = ""
	h.pendingSize = 0
	h.state = stateIdle
	if !m.Confirmed {
		return
	}
	h.openDestination(path, size)
}

func (h *handler) openDestination(path string, size uint64) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.sendError(errors.Wrap(err, "create parent directory").Error())
		h.state = stateIdle
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		h.sendError(errors.Wrap(err, "open destination").Error())
		h.state = stateIdle
		return
	}
	h.dest = f
	h.uploadTotal = size
	h.uploadDone = 0
	h.state = stateWriting
	h.send(protocol.UploadAck{})
}

func (h *handler) writeChunk(m protocol.FileChunkC) {
	if h.state != stateWriting {
		h.sendError("chunk received with no upload in progress")
		return
	}
	if _, err := h.dest.Write(m.Data); err != nil {
		h.sendError(errors.Wrap(err, "write chunk").Error())
		h.abortUpload()
		h.state = stateIdle
		return
	}
	h.uploadDone += uint64(len(m.Data))
	h.send(protocol.Progress{Done: h.uploadDone, Total: h.uploadTotal})
}

func (h *handler) endUpload() {
	if h.state != stateWriting {
		h.sendError("EndUpload with no upload in progress")
		return
	}
	h.abortUpload()
	h.state = stateIdle
}

// abortUpload closes and releases any open destination file handle,
// regardless of how the session is ending.
func (h *handler) abortUpload() {
	if h.dest == nil {
		return
	}
	err := h.dest.Close()
	if err != nil {
		h.sendError(errors.Wrap(err, "flush destination").Error())
	}
	h.dest = nil
}

func (h *handler) download(path string) {
	info, err := os.Stat(path)
	if err != nil {
		h.sendError(err.Error())
		return
	}

	var (
		files []string
		total uint64
	)
	if info.IsDir() {
		files, total, err = filesRecursive(path)
		if err != nil {
			h.sendError(errors.Wrap(err, "walk directory").Error())
			return
		}
	} else {
		files = []string{path}
		total = uint64(info.Size())
	}

	h.send(protocol.StartDownload{Size: total, IsDir: info.IsDir()})

	// For a directory the chunk stream concatenates file contents in walk
	// order with no per-file boundary framing; receivers that need
	// boundaries must learn them out of band (see DESIGN.md).
	var done uint64
	for _, p := range files {
		if !h.streamFile(p, &done, total) {
			return
		}
	}
	h.send(protocol.EndDownload{})
}

// filesRecursive walks root depth-first in lexical order, returning every
// regular file under it and the sum of their sizes.
func filesRecursive(root string) (files []string, total uint64, err error) {
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		files = append(files, p)
		total += uint64(info.Size())
		return nil
	})
	return files, total, err
}

// streamFile emits one file's contents as ChunkSize chunks, advancing the
// shared Progress counters. A file that cannot be opened is skipped, same
// as a file that vanished between the walk and the open. Returns false when
// the session should stop streaming because a read failed mid-file.
func (h *handler) streamFile(path string, done *uint64, total uint64) bool {
	f, err := os.Open(path)
	if err != nil {
		nlog.Warningf("filexfer: skipping unreadable file %s: %v", path, err)
		return true
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			h.send(protocol.FileChunkS{Data: cp})
			*done += uint64(n)
			h.send(protocol.Progress{Done: *done, Total: total})
		}
		if err == io.EOF {
			return true
		}
		if err != nil {
			h.sendError(err.Error())
			return false
		}
	}
}

func (h *handler) send(m protocol.ServerMessage) {
	h.out <- protocol.Envelope{SessionID: h.sessionID, Payload: protocol.ServerMsg{M: m}}
}

func (h *handler) sendError(msg string) {
	h.send(protocol.Error{Message: msg})
}
