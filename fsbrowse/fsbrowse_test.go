package fsbrowse

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

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

func TestReadDirListsHiddenAndDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("y"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	inbox, out := runHandle(t)
	inbox.Send(protocol.FsReadDir{Path: dir})
	resp := recvOut(t, out)

	listing, ok := resp.(protocol.FsDirListing)
	require.True(t, ok)
	require.Len(t, listing.Entries, 3)

	byName := map[string]protocol.FileEntry{}
	for _, e := range listing.Entries {
		byName[e.Name] = e
		require.Equal(t, dir, filepath.Dir(e.Path))
	}
	require.True(t, byName["sub/"].IsDir)
	require.True(t, byName[".hidden"].IsHidden)
	require.False(t, byName["visible.txt"].IsHidden)

	inbox.Close()
}

func TestHashFileMatchesReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	inbox, out := runHandle(t)
	inbox.Send(protocol.FsReadFile{Path: path})
	content := recvOut(t, out).(protocol.FsFileContent)
	require.Equal(t, []byte("hello world"), content.Data)

	inbox.Send(protocol.FsHashFile{Path: path})
	hashResp := recvOut(t, out).(protocol.FsHashResponse)
	require.Len(t, hashResp.Hex, 64)
	sum := blake3.Sum256(content.Data)
	require.Equal(t, hex.EncodeToString(sum[:]), hashResp.Hex)

	inbox.Close()
}

func TestFsErrorOnMissingPath(t *testing.T) {
	inbox, out := runHandle(t)
	inbox.Send(protocol.FsMetadata{Path: "/no/such/path/hopefully"})
	resp := recvOut(t, out)
	_, ok := resp.(protocol.FsError)
	require.True(t, ok)
	inbox.Close()
}

func TestDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	inbox, out := runHandle(t)
	inbox.Send(protocol.FsDelete{Path: path})
	resp := recvOut(t, out).(protocol.FsDeleteResponse)
	require.True(t, resp.Success)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
	inbox.Close()
}
