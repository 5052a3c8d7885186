//go:build !windows && !linux

package logger

import "syscall"

// isTerminal reports whether fd is attached to a terminal. BSD/Darwin expose
// the request as syscall.TIOCGETA; Linux doesn't define that constant and
// uses TCGETS instead (see terminal_linux.go), which is why this file
// excludes linux rather than relying on "!windows" alone.
func isTerminal(fd uintptr) bool {
	return unixIsTerminal(fd, syscall.TIOCGETA)
}
