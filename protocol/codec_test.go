package protocol_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kerr-project/kerr/protocol"
)

func roundTrip(t *testing.T, env protocol.Envelope) protocol.Envelope {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, protocol.WriteEnvelope(&buf, env))
	got, err := protocol.ReadEnvelope(&buf, 0)
	require.NoError(t, err)
	return got
}

func TestRoundTripClientMessages(t *testing.T) {
	cases := []protocol.ClientMessage{
		protocol.Hello{SessionType: protocol.TcpRelay},
		protocol.KeyEvent{Data: []byte("echo hello\r")},
		protocol.Resize{Cols: 132, Rows: 50},
		protocol.Disconnect{},
		protocol.StartUpload{Path: "/tmp/x", Size: 11, IsDir: false, Force: true},
		protocol.FileChunkC{Data: []byte("hello world")},
		protocol.EndUpload{},
		protocol.ConfirmResponse{Confirmed: true},
		protocol.RequestDownload{Path: "/tmp/x"},
		protocol.FsReadDir{Path: "/tmp"},
		protocol.FsMetadata{Path: "/tmp/x"},
		protocol.FsReadFile{Path: "/tmp/x"},
		protocol.FsHashFile{Path: "/tmp/x"},
		protocol.FsDelete{Path: "/tmp/x"},
		protocol.TcpOpen{StreamID: 7, DestinationPort: 8080},
		protocol.TcpData{StreamID: 7, Data: []byte{1, 2, 3}},
		protocol.TcpClose{StreamID: 7},
		protocol.PingRequest{Data: []byte{9, 9, 9}},
	}
	for _, c := range cases {
		env := protocol.Envelope{SessionID: "s1", Payload: protocol.ClientMsg{M: c}}
		got := roundTrip(t, env)
		require.Equal(t, env.SessionID, got.SessionID)
		require.Equal(t, c, got.Payload.(protocol.ClientMsg).M)
	}
}

func TestRoundTripServerMessages(t *testing.T) {
	cases := []protocol.ServerMessage{
		protocol.Output{Data: []byte("hi")},
		protocol.Error{Message: "boom"},
		protocol.UploadAck{},
		protocol.ConfirmPrompt{Message: "overwrite?"},
		protocol.StartDownload{Size: 42, IsDir: false},
		protocol.FileChunkS{Data: []byte("chunk")},
		protocol.EndDownload{},
		protocol.Progress{Done: 1, Total: 2},
		protocol.FsDirListing{Entries: []protocol.FileEntry{{Name: "a/", Path: "/tmp/a", IsDir: true}}},
		protocol.FsMetadataResponse{Metadata: protocol.FileMetadata{Size: 10}},
		protocol.FsFileContent{Data: []byte("content")},
		protocol.FsHashResponse{Hex: "deadbeef"},
		protocol.FsDeleteResponse{Success: true},
		protocol.FsError{Message: "not found"},
		protocol.TcpOpenResponse{StreamID: 1, Success: true},
		protocol.TcpOpenResponse{StreamID: 2, Success: false, Error: "refused"},
		protocol.TcpDataResponse{StreamID: 1, Data: []byte{1}},
		protocol.TcpCloseResponse{StreamID: 1},
		protocol.PingResponse{Data: []byte{1, 2}},
	}
	for _, c := range cases {
		env := protocol.Envelope{SessionID: "s2", Payload: protocol.ServerMsg{M: c}}
		got := roundTrip(t, env)
		require.Equal(t, env.SessionID, got.SessionID)
		require.Equal(t, c, got.Payload.(protocol.ServerMsg).M)
	}
}

func TestReadEnvelopeRandomBytesNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		n := rng.Intn(64)
		b := make([]byte, n)
		rng.Read(b)
		_, err := protocol.ReadEnvelope(bytes.NewReader(b), 0)
		if n < 4 {
			require.Error(t, err)
			continue
		}
		// may or may not error, but must never panic (enforced by the
		// surrounding test framework if it does)
		_ = err
	}
}

func TestReadEnvelopeOverLengthCloses(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0x7F}) // huge length
	_, err := protocol.ReadEnvelope(&buf, protocol.MaxFrameSize)
	require.Error(t, err)
	var fe *protocol.FramingError
	require.ErrorAs(t, err, &fe)
}

func TestReadEnvelopeShortReadIsFramingError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{5, 0, 0, 0}) // claims 5 bytes, provides none
	_, err := protocol.ReadEnvelope(&buf, 0)
	require.Error(t, err)
	var fe *protocol.FramingError
	require.ErrorAs(t, err, &fe)
}
