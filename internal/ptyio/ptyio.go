// Package ptyio exposes a pseudo-terminal pair as a byte stream.
//
// The master side is what this process reads and writes; the slave path
// (TTYName) is what another process opens as if it were a serial port.
//
//	p, err := ptyio.Open(logger)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//	fmt.Println(p.TTYName()) // "/dev/pts/5"
//
// Unlike a terminal, the slave is put in raw mode so binary frames pass
// through unmodified. The slave descriptor stays open for the lifetime of
// the PTY, which keeps the device usable across successive client sessions.
package ptyio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// noopLogger discards all output.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// PTY is a master/slave pseudo-terminal pair.
type PTY struct {
	logger *logrus.Logger
	master *os.File
	slave  *os.File

	closeOnce sync.Once
	closeErr  error
}

// Open allocates a PTY and puts the slave in raw mode. A nil logger
// discards output.
func Open(logger *logrus.Logger) (*PTY, error) {
	if logger == nil {
		logger = noopLogger
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		cleanup := errors.Join(master.Close(), slave.Close())
		if cleanup != nil {
			return nil, fmt.Errorf("failed to set PTY(tty) %s to raw mode: %w (cleanup errors: %v)", slave.Name(), err, cleanup)
		}
		return nil, fmt.Errorf("failed to set PTY(tty) %s to raw mode: %w", slave.Name(), err)
	}

	logger.WithField("tty", slave.Name()).Debug("PTY opened")
	return &PTY{logger: logger, master: master, slave: slave}, nil
}

// TTYName returns the slave device path, e.g. "/dev/pts/5".
func (p *PTY) TTYName() string {
	return p.slave.Name()
}

// Read returns bytes written to the slave by the other process.
func (p *PTY) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

// Write sends bytes to the process reading the slave.
func (p *PTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

// Close releases both sides. Pending reads return with an error.
func (p *PTY) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = errors.Join(p.master.Close(), p.slave.Close())
		if p.closeErr != nil {
			p.logger.WithError(p.closeErr).Warn("Failed to close PTY")
		}
	})
	return p.closeErr
}
