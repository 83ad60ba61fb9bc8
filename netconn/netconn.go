// Package netconn implements the connection acceptor/dialer (§4.9): it
// binds the QUIC transport under the application protocol tag "kerr/0".
// The host side accepts every bidirectional stream on each connection and
// hands each one to a caller-supplied handler (the session router in
// `serve`); the dialer side opens one stream per connection.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package netconn

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/kerr-project/kerr/internal/nlog"
)

// ALPN is the application-layer protocol tag negotiated over TLS, fixed by
// the wire protocol.
const ALPN = "kerr/0"

var quicConfig = &quic.Config{
	MaxIdleTimeout:  45 * time.Second,
	KeepAlivePeriod: 15 * time.Second,
}

// Acceptor binds one UDP address and hands every stream opened on every
// accepted QUIC connection to handle, until ctx is canceled.
type Acceptor struct {
	ln *quic.Listener
}

// Listen binds addr (e.g. "0.0.0.0:0") and returns an Acceptor whose Addr
// the caller packs into a connection string for the dialer.
func Listen(addr string) (*Acceptor, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, errors.Wrap(err, "generate host certificate")
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, errors.Wrap(err, "bind quic listener")
	}
	return &Acceptor{ln: ln}, nil
}

func (a *Acceptor) Addr() string { return a.ln.Addr().String() }

func (a *Acceptor) Close() error { return a.ln.Close() }

// Serve accepts connections until ctx is canceled or Accept fails, handing
// every bidirectional stream on every connection to onStream.
func (a *Acceptor) Serve(ctx context.Context, onStream func(ctx context.Context, stream quic.Stream)) error {
	for {
		conn, err := a.ln.Accept(ctx)
		if err != nil {
			return err
		}
		go a.handleConn(ctx, conn, onStream)
	}
}

func (a *Acceptor) handleConn(ctx context.Context, conn quic.Connection, onStream func(context.Context, quic.Stream)) {
	tag := nlog.ShortTag(conn.RemoteAddr().String())
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			nlog.Infof("netconn[%s]: connection from %s ended: %v", tag, conn.RemoteAddr(), err)
			return
		}
		nlog.Infof("netconn[%s]: stream %d opened", tag, stream.StreamID())
		go onStream(ctx, stream)
	}
}

// Dial connects to addr, opens one bidirectional stream, and returns it.
func Dial(ctx context.Context, addr string) (quic.Connection, quic.Stream, error) {
	tlsConf := &tls.Config{
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true,
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial quic connection")
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, nil, errors.Wrap(err, "open quic stream")
	}
	return conn, stream, nil
}

// selfSignedTLSConfig mints an ephemeral, NAT-traversal-agnostic TLS
// identity for the ALPN handshake. The transport's own connection-level
// authentication (out of scope here, §1) is expected to layer additional
// peer verification on top; this config only satisfies QUIC's TLS
// requirement.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
	}, nil
}
