package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/srg/thermo/internal/bgapi"
	"github.com/srg/thermo/internal/thermo"
)

// Command-level errors
var (
	// ErrPortRequired means neither --port nor the config file named a serial port.
	ErrPortRequired = errors.New("serial port required")
)

// FormatUserError turns an error chain into a message for the terminal.
// Known failures get a hint; anything else is printed as is.
func FormatUserError(err error) string {
	var cmdErr *bgapi.CommandError

	switch {
	case errors.Is(err, ErrPortRequired):
		return "no serial port given; pass --port or set port in the config file (see 'thermo ports')"
	case errors.As(err, &cmdErr):
		return fmt.Sprintf("NCP rejected %s with result 0x%04x", cmdErr.Command, cmdErr.Result)
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("%v (check that your user may open serial devices)", err)
	case errors.Is(err, io.EOF), errors.Is(err, thermo.ErrSourceClosed):
		return "NCP link closed"
	case errors.Is(err, bgapi.ErrClosed):
		return "NCP link closed by client"
	default:
		return err.Error()
	}
}
