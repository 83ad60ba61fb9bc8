//go:build !windows

/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package fsbrowse

import (
	"os"
	"strings"
)

// isHidden applies the Unix rule: a leading dot in the base name.
func isHidden(path string, _ os.FileInfo) bool {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	return strings.HasPrefix(base, ".")
}
