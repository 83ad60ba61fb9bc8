// Package connstr implements the connection-string codec (§6): a compact,
// copy-pasteable encoding of a transport address as
// base64url-no-padding(gzip(JSON(address))).
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package connstr

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Address is the transport address carried inside a connection string: the
// host's dialable network address plus whatever identity material the
// transport needs to authenticate it.
type Address struct {
	Addr      string `json:"addr"`
	PublicKey string `json:"public_key,omitempty"`
}

// Encode renders addr as a connection string.
func Encode(addr Address) (string, error) {
	raw, err := json.Marshal(addr)
	if err != nil {
		return "", errors.Wrap(err, "marshal address")
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return "", errors.Wrap(err, "gzip address")
	}
	if err := gw.Close(); err != nil {
		return "", errors.Wrap(err, "gzip address")
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a connection string produced by Encode. Whitespace
// (including copy-paste-introduced newlines) is stripped before decoding.
func Decode(s string) (Address, error) {
	s = stripWhitespace(s)

	compressed, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Address{}, errors.Wrap(err, "base64 decode connection string")
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Address{}, errors.Wrap(err, "gzip decode connection string")
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return Address{}, errors.Wrap(err, "gzip decode connection string")
	}

	var addr Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return Address{}, errors.Wrap(err, "unmarshal address")
	}
	return addr, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
