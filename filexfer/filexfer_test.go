package filexfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kerr-project/kerr/protocol"
	"github.com/kerr-project/kerr/session"
)

func runHandle(t *testing.T) (*session.Inbox, chan protocol.Envelope) {
	t.Helper()
	inbox := session.NewInbox()
	out := make(chan protocol.Envelope, 16)
	go Handle(context.Background(), "sess-1", inbox, out)
	return inbox, out
}

func recvOut(t *testing.T, out chan protocol.Envelope) protocol.ServerMessage {
	t.Helper()
	select {
	case env := <-out:
		sm, ok := env.Payload.(protocol.ServerMsg)
		require.True(t, ok)
		return sm.M
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func TestUploadWithoutConfirmation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")

	inbox, out := runHandle(t)
	inbox.Send(protocol.StartUpload{Path: path, Size: 11, Force: true})
	_, ok := recvOut(t, out).(protocol.UploadAck)
	require.True(t, ok)

	inbox.Send(protocol.FileChunkC{Data: []byte("hello world")})
	progress, ok := recvOut(t, out).(protocol.Progress)
	require.True(t, ok)
	require.Equal(t, uint64(11), progress.Done)
	require.Equal(t, uint64(11), progress.Total)

	inbox.Send(protocol.EndUpload{})

	// endUpload emits no message; give the handler a moment to flush.
	time.Sleep(50 * time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
	require.Len(t, data, 11)

	inbox.Close()
}

func TestUploadExistingFileRequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	inbox, out := runHandle(t)
	inbox.Send(protocol.StartUpload{Path: path, Size: 3, Force: false})
	_, ok := recvOut(t, out).(protocol.ConfirmPrompt)
	require.True(t, ok)

	inbox.Send(protocol.ConfirmResponse{Confirmed: false})
	time.Sleep(50 * time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "old", string(data))

	inbox.Send(protocol.StartUpload{Path: path, Size: 3, Force: false})
	_, ok = recvOut(t, out).(protocol.ConfirmPrompt)
	require.True(t, ok)
	inbox.Send(protocol.ConfirmResponse{Confirmed: true})
	_, ok = recvOut(t, out).(protocol.UploadAck)
	require.True(t, ok)
	inbox.Send(protocol.FileChunkC{Data: []byte("new")})
	inbox.Send(protocol.EndUpload{})
	time.Sleep(50 * time.Millisecond)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))

	inbox.Close()
}

func TestUploadOverExistingDirectoryErrors(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	inbox, out := runHandle(t)
	inbox.Send(protocol.StartUpload{Path: sub, Size: 1, Force: true})
	_, ok := recvOut(t, out).(protocol.Error)
	require.True(t, ok)

	info, err := os.Stat(sub)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	inbox.Close()
}

func TestDownloadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte("payload bytes"), 0o644))

	inbox, out := runHandle(t)
	inbox.Send(protocol.RequestDownload{Path: path})

	start, ok := recvOut(t, out).(protocol.StartDownload)
	require.True(t, ok)
	require.Equal(t, uint64(len("payload bytes")), start.Size)
	require.False(t, start.IsDir)

	chunk, ok := recvOut(t, out).(protocol.FileChunkS)
	require.True(t, ok)
	require.Equal(t, "payload bytes", string(chunk.Data))

	progress, ok := recvOut(t, out).(protocol.Progress)
	require.True(t, ok)
	require.Equal(t, start.Size, progress.Done)
	require.Equal(t, start.Size, progress.Total)

	_, ok = recvOut(t, out).(protocol.EndDownload)
	require.True(t, ok)

	inbox.Close()
}

func TestDownloadDirectoryStreamsAllFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "c.txt"), []byte("charlie"), 0o644))

	inbox, out := runHandle(t)
	inbox.Send(protocol.RequestDownload{Path: dir})

	start, ok := recvOut(t, out).(protocol.StartDownload)
	require.True(t, ok)
	require.True(t, start.IsDir)
	require.Equal(t, uint64(len("alpha")+len("charlie")), start.Size)

	// Chunks concatenate file contents in depth-first lexical walk order;
	// there is no per-file boundary on the wire.
	var content []byte
	var lastProgress protocol.Progress
	for {
		msg := recvOut(t, out)
		if _, isEnd := msg.(protocol.EndDownload); isEnd {
			break
		}
		switch m := msg.(type) {
		case protocol.FileChunkS:
			content = append(content, m.Data...)
		case protocol.Progress:
			lastProgress = m
		default:
			t.Fatalf("unexpected message during directory download: %T", msg)
		}
	}
	require.Equal(t, "alphacharlie", string(content))
	require.Equal(t, start.Size, lastProgress.Done)
	require.Equal(t, start.Size, lastProgress.Total)

	inbox.Close()
}
