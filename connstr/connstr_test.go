package connstr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	addr := Address{Addr: "203.0.113.5:4433", PublicKey: "deadbeef"}
	s, err := Encode(addr)
	require.NoError(t, err)
	require.NotEmpty(t, s)

	got, err := Decode(s)
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestDecodeIgnoresWhitespace(t *testing.T) {
	addr := Address{Addr: "198.51.100.2:4433"}
	s, err := Encode(addr)
	require.NoError(t, err)

	padded := " " + s[:len(s)/2] + "\n" + s[len(s)/2:] + "\t\r\n"
	got, err := Decode(padded)
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not valid base64url!!")
	require.Error(t, err)
}
