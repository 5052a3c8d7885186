//go:build linux

package logger

// tcgets is Linux's ioctl request number for reading terminal attributes,
// distinct from the BSD/Darwin TIOCGETA used by terminal.go.
const tcgets = 0x5401

// isTerminal reports whether fd is attached to a terminal.
func isTerminal(fd uintptr) bool {
	return unixIsTerminal(fd, tcgets)
}
