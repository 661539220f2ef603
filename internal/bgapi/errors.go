package bgapi

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame means a payload ended before all of its fields were read.
	ErrShortFrame = errors.New("short frame")
	// ErrFrameTooLarge means a payload does not fit the 11-bit length field.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrUnknownMessage means a message name or ID is not in the API table.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrClosed is reported by a Node that was closed by its owner.
	ErrClosed = errors.New("node closed")
)

// CommandError is a command response carrying a non-zero result code.
type CommandError struct {
	Command string
	Result  uint16
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed with result 0x%04x", e.Command, e.Result)
}
