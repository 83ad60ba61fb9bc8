//go:build windows

/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package fsbrowse

import (
	"os"
	"syscall"
)

// isHidden applies the Windows rule: the FILE_ATTRIBUTE_HIDDEN bit.
func isHidden(_ string, info os.FileInfo) bool {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return false
	}
	return sys.FileAttributes&syscall.FILE_ATTRIBUTE_HIDDEN != 0
}
