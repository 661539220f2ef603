// Package transport opens the byte stream to the NCP.
package transport

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the UART speed of the stock NCP firmware.
const DefaultBaudRate = 115200

// ErrInvalidBaudRate is returned for a non-positive baud rate.
var ErrInvalidBaudRate = errors.New("invalid baud rate")

// OpenSerial opens port at baud, 8N1, with no flow control.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBaudRate, baud)
	}
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return p, nil
}

// Port describes a serial port found on the host.
type Port struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

func (p Port) String() string {
	if !p.USB {
		return p.Name
	}
	s := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += "  " + p.Product
	}
	if p.Serial != "" {
		s += "  serial " + p.Serial
	}
	return s
}

// ListPorts returns the serial ports on the host. USB details are filled in
// where the platform exposes them.
func ListPorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, nerr := serial.GetPortsList()
		if nerr != nil {
			return nil, fmt.Errorf("list serial ports: %w", errors.Join(err, nerr))
		}
		ports := make([]Port, 0, len(names))
		for _, n := range names {
			ports = append(ports, Port{Name: n})
		}
		return ports, nil
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}
