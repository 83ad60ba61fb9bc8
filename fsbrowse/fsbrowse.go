// Package fsbrowse implements the host side of the file-browser session
// (§4.5): a stateless request/response loop answering directory listing,
// metadata, content, hash, and delete requests against the local
// filesystem.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package fsbrowse

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"

	"github.com/kerr-project/kerr/internal/nlog"
	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

// Handle implements session.HandlerFunc for protocol.FileBrowser.
func Handle(_ context.Context, sessionID string, inbox *session.Inbox, out chan<- protocol.Envelope) {
	for {
		msg, ok := inbox.Recv()
		if !ok {
			return
		}
		switch m := msg.(type) {
		case protocol.FsReadDir:
			readDir(sessionID, m.Path, out)
		case protocol.FsMetadata:
			metadata(sessionID, m.Path, out)
		case protocol.FsReadFile:
			readFile(sessionID, m.Path, out)
		case protocol.FsHashFile:
			hashFile(sessionID, m.Path, out)
		case protocol.FsDelete:
			deletePath(sessionID, m.Path, out)
		case protocol.Disconnect:
			return
		default:
			nlog.Warningf("fsbrowse %s: ignoring unexpected message %T", sessionID, m)
		}
	}
}

func readDir(sessionID, dir string, out chan<- protocol.Envelope) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		fsErr(sessionID, out, err)
		return
	}
	entries := make([]protocol.FileEntry, 0, len(ents))
	for _, de := range ents {
		info, err := de.Info()
		if err != nil {
			continue
		}
		name := de.Name()
		full := filepath.Join(dir, name)
		isDir := de.IsDir()
		if de.Type()&os.ModeSymlink != 0 {
			if st, err := os.Stat(full); err == nil {
				isDir = st.IsDir()
			}
		}
		if isDir {
			name += "/"
		}
		md := metadataOf(info, isDir)
		entries = append(entries, protocol.FileEntry{
			Name:     name,
			Path:     full,
			IsDir:    isDir,
			IsHidden: isHidden(full, info),
			Metadata: &md,
		})
	}
	sendServer(out, sessionID, protocol.FsDirListing{Entries: entries})
}

func metadata(sessionID, path string, out chan<- protocol.Envelope) {
	info, err := os.Lstat(path)
	if err != nil {
		fsErr(sessionID, out, err)
		return
	}
	isDir := info.IsDir()
	sendServer(out, sessionID, protocol.FsMetadataResponse{Metadata: metadataOf(info, isDir)})
}

func readFile(sessionID, path string, out chan<- protocol.Envelope) {
	data, err := os.ReadFile(path)
	if err != nil {
		fsErr(sessionID, out, err)
		return
	}
	sendServer(out, sessionID, protocol.FsFileContent{Data: data})
}

func hashFile(sessionID, path string, out chan<- protocol.Envelope) {
	data, err := os.ReadFile(path)
	if err != nil {
		fsErr(sessionID, out, err)
		return
	}
	sum := blake3.Sum256(data)
	sendServer(out, sessionID, protocol.FsHashResponse{Hex: hex.EncodeToString(sum[:])})
}

func deletePath(sessionID, path string, out chan<- protocol.Envelope) {
	if err := os.RemoveAll(path); err != nil {
		fsErr(sessionID, out, err)
		return
	}
	sendServer(out, sessionID, protocol.FsDeleteResponse{Success: true})
}

func metadataOf(info os.FileInfo, isDir bool) protocol.FileMetadata {
	mtime := info.ModTime().UnixNano()
	return protocol.FileMetadata{
		Size:     uint64(info.Size()),
		Modified: mtime,
		IsDir:    isDir,
	}
}

func fsErr(sessionID string, out chan<- protocol.Envelope, err error) {
	sendServer(out, sessionID, protocol.FsError{Message: err.Error()})
}

func sendServer(out chan<- protocol.Envelope, sessionID string, m protocol.ServerMessage) {
	out <- protocol.Envelope{SessionID: sessionID, Payload: protocol.ServerMsg{M: m}}
}
