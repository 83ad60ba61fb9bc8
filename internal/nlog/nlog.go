// Package nlog is kerr's adaptation of the teacher's cmn/nlog: a small
// leveled, timestamped logger safe for concurrent use by every session
// handler and the router's reader/writer goroutines. Scaled down from the
// teacher's dual in-memory-buffer/rotating-file daemon logger (appropriate
// for a long-lived cluster node) to a single io.Writer behind a mutex,
// appropriate for a short-lived CLI process (see SPEC_FULL.md §1.1).
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu  sync.Mutex
	out io.Writer = os.Stderr
	lvl           = sevInfo
)

// SetOutput redirects logging, e.g. to a `--log-file` handle opened by cmd/kerr.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetVerbose toggles whether Infof lines are emitted at all.
func SetVerbose(verbose bool) {
	mu.Lock()
	if verbose {
		lvl = sevInfo
	} else {
		lvl = sevWarn
	}
	mu.Unlock()
}

func log(sev severity, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if sev < lvl {
		return
	}
	ts := time.Now().Format("15:04:05.000000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s%s %s\n", sev.tag(), ts, msg)
}

func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Infoln(args ...any)                  { log(sevInfo, "%s", fmt.Sprintln(args...)) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Warningln(args ...any)               { log(sevWarn, "%s", fmt.Sprintln(args...)) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }
func Errorln(args ...any)                 { log(sevErr, "%s", fmt.Sprintln(args...)) }

// ShortTag turns an opaque identifier (a dialer's public key, a connection
// string) into a short, loggable fingerprint, the same non-cryptographic
// fingerprint trick the teacher's cmn/cos.HashK8sProxyID uses to keep log
// lines readable without printing raw key material.
func ShortTag(id string) string {
	h := xxhash.ChecksumString64(id)
	s := strconv.FormatUint(h, 36)
	if len(s) < 8 {
		s = "00000000"[:8-len(s)] + s
	}
	return s[:8]
}

// Flush is a no-op placeholder kept for symmetry with the teacher's
// flush-on-shutdown call sites (cmd/authn's logFlush); this logger writes
// through immediately, so there is nothing buffered to flush. Exposed so
// callers written in the teacher's idiom don't need an `if` around it.
func Flush() {}
