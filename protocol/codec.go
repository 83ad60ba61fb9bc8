/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxFrameSize bounds the u32 length prefix so a corrupt or hostile peer
// cannot force an unbounded allocation (§4.1: "recommended 16 MiB").
const MaxFrameSize = 16 << 20

// FramingError wraps a short read/write on the length-prefix framing layer.
type FramingError struct{ Err error }

func (e *FramingError) Error() string { return "framing: " + e.Err.Error() }
func (e *FramingError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed envelope payload.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return "decode: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// WriteEnvelope encodes env and writes it to w as a length-prefixed frame:
// a little-endian u32 byte count followed by exactly that many payload
// bytes, each written as one full Write call (§4.1).
func WriteEnvelope(w io.Writer, env Envelope) error {
	body, err := encodeEnvelope(env)
	if err != nil {
		return &DecodeError{err}
	}
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(body)))
	if _, err := w.Write(lenbuf[:]); err != nil {
		return &FramingError{err}
	}
	if _, err := w.Write(body); err != nil {
		return &FramingError{err}
	}
	return nil
}

// ReadEnvelope reads one length-prefixed frame from r and decodes it.
// maxFrame <= 0 defaults to MaxFrameSize.
func ReadEnvelope(r io.Reader, maxFrame int) (Envelope, error) {
	if maxFrame <= 0 {
		maxFrame = MaxFrameSize
	}
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return Envelope{}, &FramingError{err}
	}
	n := binary.LittleEndian.Uint32(lenbuf[:])
	if int(n) > maxFrame {
		return Envelope{}, &FramingError{errors.Errorf("frame length %d exceeds max %d", n, maxFrame)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, &FramingError{err}
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return Envelope{}, &DecodeError{err}
	}
	return env, nil
}

// ---- low-level byte packing, in the manual-encode style of the teacher's
// transport/pdu.go and sendmsg.go (insMsg/extProtoHdr) ----

type wbuf struct{ b []byte }

func (w *wbuf) u8(v uint8) { w.b = append(w.b, v) }
func (w *wbuf) boolb(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}
func (w *wbuf) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.b = append(w.b, b[:]...)
}
func (w *wbuf) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.b = append(w.b, b[:]...)
}
func (w *wbuf) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.b = append(w.b, b[:]...)
}
func (w *wbuf) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.b = append(w.b, v...)
}
func (w *wbuf) str(v string) { w.bytes([]byte(v)) }

type rbuf struct {
	b   []byte
	off int
}

func (r *rbuf) u8() (uint8, error) {
	if r.off+1 > len(r.b) {
		return 0, errors.New("unexpected end of envelope (u8)")
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *rbuf) boolb() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *rbuf) u16() (uint16, error) {
	if r.off+2 > len(r.b) {
		return 0, errors.New("unexpected end of envelope (u16)")
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *rbuf) u32() (uint32, error) {
	if r.off+4 > len(r.b) {
		return 0, errors.New("unexpected end of envelope (u32)")
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *rbuf) u64() (uint64, error) {
	if r.off+8 > len(r.b) {
		return 0, errors.New("unexpected end of envelope (u64)")
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *rbuf) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(n) < 0 || r.off+int(n) > len(r.b) {
		return nil, errors.Errorf("malformed length-prefixed field (len=%d)", n)
	}
	v := make([]byte, n)
	copy(v, r.b[r.off:r.off+int(n)])
	r.off += int(n)
	return v, nil
}

func (r *rbuf) str() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ---- envelope <-> bytes ----

func encodeEnvelope(env Envelope) ([]byte, error) {
	w := &wbuf{}
	w.str(env.SessionID)
	switch m := env.Payload.(type) {
	case ClientMsg:
		w.u8(0)
		if err := encodeClientMessage(w, m.M); err != nil {
			return nil, err
		}
	case ServerMsg:
		w.u8(1)
		if err := encodeServerMessage(w, m.M); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown message arm %T", env.Payload)
	}
	return w.b, nil
}

func decodeEnvelope(b []byte) (Envelope, error) {
	r := &rbuf{b: b}
	sid, err := r.str()
	if err != nil {
		return Envelope{}, err
	}
	arm, err := r.u8()
	if err != nil {
		return Envelope{}, err
	}
	var payload Message
	switch arm {
	case 0:
		m, err := decodeClientMessage(r)
		if err != nil {
			return Envelope{}, err
		}
		payload = ClientMsg{m}
	case 1:
		m, err := decodeServerMessage(r)
		if err != nil {
			return Envelope{}, err
		}
		payload = ServerMsg{m}
	default:
		return Envelope{}, errors.Errorf("unknown message arm tag %d", arm)
	}
	return Envelope{SessionID: sid, Payload: payload}, nil
}

func encodeClientMessage(w *wbuf, m ClientMessage) error {
	w.u8(m.clientTag())
	switch v := m.(type) {
	case Hello:
		w.u8(uint8(v.SessionType))
	case KeyEvent:
		w.bytes(v.Data)
	case Resize:
		w.u16(v.Cols)
		w.u16(v.Rows)
	case Disconnect:
	case StartUpload:
		w.str(v.Path)
		w.u64(v.Size)
		w.boolb(v.IsDir)
		w.boolb(v.Force)
	case FileChunkC:
		w.bytes(v.Data)
	case EndUpload:
	case ConfirmResponse:
		w.boolb(v.Confirmed)
	case RequestDownload:
		w.str(v.Path)
	case FsReadDir:
		w.str(v.Path)
	case FsMetadata:
		w.str(v.Path)
	case FsReadFile:
		w.str(v.Path)
	case FsHashFile:
		w.str(v.Path)
	case FsDelete:
		w.str(v.Path)
	case TcpOpen:
		w.u32(v.StreamID)
		w.u16(v.DestinationPort)
	case TcpData:
		w.u32(v.StreamID)
		w.bytes(v.Data)
	case TcpClose:
		w.u32(v.StreamID)
	case PingRequest:
		w.bytes(v.Data)
	default:
		return errors.Errorf("unknown client message %T", m)
	}
	return nil
}

func decodeClientMessage(r *rbuf) (ClientMessage, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagHello:
		st, err := r.u8()
		if err != nil {
			return nil, err
		}
		return Hello{SessionType: SessionType(st)}, nil
	case tagKeyEvent:
		b, err := r.bytes()
		return KeyEvent{Data: b}, err
	case tagResize:
		cols, err := r.u16()
		if err != nil {
			return nil, err
		}
		rows, err := r.u16()
		return Resize{Cols: cols, Rows: rows}, err
	case tagDisconnect:
		return Disconnect{}, nil
	case tagStartUpload:
		path, err := r.str()
		if err != nil {
			return nil, err
		}
		size, err := r.u64()
		if err != nil {
			return nil, err
		}
		isDir, err := r.boolb()
		if err != nil {
			return nil, err
		}
		force, err := r.boolb()
		return StartUpload{Path: path, Size: size, IsDir: isDir, Force: force}, err
	case tagFileChunkC:
		b, err := r.bytes()
		return FileChunkC{Data: b}, err
	case tagEndUpload:
		return EndUpload{}, nil
	case tagConfirmResponse:
		c, err := r.boolb()
		return ConfirmResponse{Confirmed: c}, err
	case tagRequestDownload:
		p, err := r.str()
		return RequestDownload{Path: p}, err
	case tagFsReadDir:
		p, err := r.str()
		return FsReadDir{Path: p}, err
	case tagFsMetadata:
		p, err := r.str()
		return FsMetadata{Path: p}, err
	case tagFsReadFile:
		p, err := r.str()
		return FsReadFile{Path: p}, err
	case tagFsHashFile:
		p, err := r.str()
		return FsHashFile{Path: p}, err
	case tagFsDelete:
		p, err := r.str()
		return FsDelete{Path: p}, err
	case tagTcpOpen:
		sid, err := r.u32()
		if err != nil {
			return nil, err
		}
		port, err := r.u16()
		return TcpOpen{StreamID: sid, DestinationPort: port}, err
	case tagTcpData:
		sid, err := r.u32()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes()
		return TcpData{StreamID: sid, Data: data}, err
	case tagTcpClose:
		sid, err := r.u32()
		return TcpClose{StreamID: sid}, err
	case tagPingRequest:
		b, err := r.bytes()
		return PingRequest{Data: b}, err
	default:
		return nil, errors.Errorf("unknown client message tag %d", tag)
	}
}

func encodeServerMessage(w *wbuf, m ServerMessage) error {
	w.u8(m.serverTag())
	switch v := m.(type) {
	case Output:
		w.bytes(v.Data)
	case Error:
		w.str(v.Message)
	case UploadAck:
	case ConfirmPrompt:
		w.str(v.Message)
	case StartDownload:
		w.u64(v.Size)
		w.boolb(v.IsDir)
	case FileChunkS:
		w.bytes(v.Data)
	case EndDownload:
	case Progress:
		w.u64(v.Done)
		w.u64(v.Total)
	case FsDirListing:
		b, err := json.Marshal(v.Entries)
		if err != nil {
			return err
		}
		w.bytes(b)
	case FsMetadataResponse:
		b, err := json.Marshal(v.Metadata)
		if err != nil {
			return err
		}
		w.bytes(b)
	case FsFileContent:
		w.bytes(v.Data)
	case FsHashResponse:
		w.str(v.Hex)
	case FsDeleteResponse:
		w.boolb(v.Success)
	case FsError:
		w.str(v.Message)
	case TcpOpenResponse:
		w.u32(v.StreamID)
		w.boolb(v.Success)
		w.str(v.Error)
	case TcpDataResponse:
		w.u32(v.StreamID)
		w.bytes(v.Data)
	case TcpCloseResponse:
		w.u32(v.StreamID)
		w.str(v.Error)
	case PingResponse:
		w.bytes(v.Data)
	default:
		return errors.Errorf("unknown server message %T", m)
	}
	return nil
}

func decodeServerMessage(r *rbuf) (ServerMessage, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagOutput:
		b, err := r.bytes()
		return Output{Data: b}, err
	case tagError:
		s, err := r.str()
		return Error{Message: s}, err
	case tagUploadAck:
		return UploadAck{}, nil
	case tagConfirmPrompt:
		s, err := r.str()
		return ConfirmPrompt{Message: s}, err
	case tagStartDownload:
		size, err := r.u64()
		if err != nil {
			return nil, err
		}
		isDir, err := r.boolb()
		return StartDownload{Size: size, IsDir: isDir}, err
	case tagFileChunkS:
		b, err := r.bytes()
		return FileChunkS{Data: b}, err
	case tagEndDownload:
		return EndDownload{}, nil
	case tagProgress:
		done, err := r.u64()
		if err != nil {
			return nil, err
		}
		total, err := r.u64()
		return Progress{Done: done, Total: total}, err
	case tagFsDirListing:
		b, err := r.bytes()
		if err != nil {
			return nil, err
		}
		var entries []FileEntry
		if err := json.Unmarshal(b, &entries); err != nil {
			return nil, err
		}
		return FsDirListing{Entries: entries}, nil
	case tagFsMetadataResponse:
		b, err := r.bytes()
		if err != nil {
			return nil, err
		}
		var md FileMetadata
		if err := json.Unmarshal(b, &md); err != nil {
			return nil, err
		}
		return FsMetadataResponse{Metadata: md}, nil
	case tagFsFileContent:
		b, err := r.bytes()
		return FsFileContent{Data: b}, err
	case tagFsHashResponse:
		s, err := r.str()
		return FsHashResponse{Hex: s}, err
	case tagFsDeleteResponse:
		s, err := r.boolb()
		return FsDeleteResponse{Success: s}, err
	case tagFsError:
		s, err := r.str()
		return FsError{Message: s}, err
	case tagTcpOpenResponse:
		sid, err := r.u32()
		if err != nil {
			return nil, err
		}
		ok, err := r.boolb()
		if err != nil {
			return nil, err
		}
		errs, err := r.str()
		return TcpOpenResponse{StreamID: sid, Success: ok, Error: errs}, err
	case tagTcpDataResponse:
		sid, err := r.u32()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes()
		return TcpDataResponse{StreamID: sid, Data: data}, err
	case tagTcpCloseResponse:
		sid, err := r.u32()
		if err != nil {
			return nil, err
		}
		errs, err := r.str()
		return TcpCloseResponse{StreamID: sid, Error: errs}, err
	case tagPingResponse:
		b, err := r.bytes()
		return PingResponse{Data: b}, err
	default:
		return nil, errors.Errorf("unknown server message tag %d", tag)
	}
}
