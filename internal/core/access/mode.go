package access

import (
	"fmt"
	"strings"
)

// Mode is how a kernel argument touches its dat.
type Mode uint8

const (
	Read Mode = iota + 1
	Write
	ReadWrite
	Inc
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case ReadWrite:
		return "RW"
	case Inc:
		return "INC"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Writes reports whether the mode commits kernel output back to the dat.
func (m Mode) Writes() bool { return m == Write || m == ReadWrite || m == Inc }

// ParseMode accepts "read", "OP_READ", "rw", "inc", ... case-insensitively.
func ParseMode(s string) (Mode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "OP_")
	switch s {
	case "READ", "R":
		return Read, nil
	case "WRITE", "W":
		return Write, nil
	case "RW", "READ_WRITE", "READWRITE":
		return ReadWrite, nil
	case "INC", "INCREMENT":
		return Inc, nil
	}
	return 0, fmt.Errorf("unknown access mode %q", s)
}
