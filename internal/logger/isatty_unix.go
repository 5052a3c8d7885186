//go:build !windows

package logger

import (
	"syscall"
	"unsafe"
)

// unixIsTerminal issues the terminal-attributes ioctl request against fd and
// reports whether it succeeded, which on every unix syscall.Termios target
// is equivalent to "fd refers to a tty". Shared by terminal.go (BSD/Darwin)
// and terminal_linux.go, which differ only in which request number their
// kernel expects.
func unixIsTerminal(fd uintptr, ioctlRequest uintptr) bool {
	var termios syscall.Termios
	_, _, errno := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		ioctlRequest,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return errno == 0
}
