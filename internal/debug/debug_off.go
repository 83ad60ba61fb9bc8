//go:build !debug

// Package debug provides cheap-to-disable invariant assertions, following
// the teacher's cmn/debug build-tag toggle: compiled out entirely unless
// built with `-tags debug`.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package debug

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func ON() bool                           { return false }
