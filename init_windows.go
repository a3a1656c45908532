//go:build windows

package main

import "syscall"

const utf8CodePage = 65001

// The console defaults to a legacy code page; emoji in streamed replies and
// non-ASCII game titles typed at the prompt need UTF-8 both ways.
func init() {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	kernel32.NewProc("SetConsoleOutputCP").Call(uintptr(utf8CodePage))
	kernel32.NewProc("SetConsoleCP").Call(uintptr(utf8CodePage))
}
