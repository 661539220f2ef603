package thermo

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/srg/thermo/internal/ncp"
)

// Reporter receives the user-visible outcomes of the client.
// Reports are diagnostics only and never feed back into the protocol.
type Reporter interface {
	Booted(e *ncp.BootEvent)
	Milestone(msg string)
	Temperature(conn ncp.Connection, r TemperatureReading)
	RSSI(conn ncp.Connection, rssi int8)
	Unhandled(e ncp.Event)
}

// ConsoleReporter prints reports as lines of text.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer

	banner  *color.Color
	info    *color.Color
	reading *color.Color
	signal  *color.Color
	warn    *color.Color
}

// NewConsoleReporter creates a reporter writing to out. Colour is applied only when colored is true.
func NewConsoleReporter(out io.Writer, colored bool) *ConsoleReporter {
	r := &ConsoleReporter{
		out:     out,
		banner:  color.New(color.FgCyan, color.Bold),
		info:    color.New(color.FgWhite),
		reading: color.New(color.FgGreen, color.Bold),
		signal:  color.New(color.FgYellow),
		warn:    color.New(color.FgRed),
	}
	for _, c := range []*color.Color{r.banner, r.info, r.reading, r.signal, r.warn} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *ConsoleReporter) println(c *color.Color, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = c.Fprintln(r.out, fmt.Sprintf(format, args...))
}

func (r *ConsoleReporter) Booted(e *ncp.BootEvent) {
	r.println(r.banner, "Boot event received! Major version: %d, minor version: %d", e.Major, e.Minor)
}

func (r *ConsoleReporter) Milestone(msg string) {
	r.println(r.info, "%s", msg)
}

func (r *ConsoleReporter) Temperature(_ ncp.Connection, t TemperatureReading) {
	r.println(r.reading, "Temperature: %s", t)
}

func (r *ConsoleReporter) RSSI(_ ncp.Connection, rssi int8) {
	r.println(r.signal, "RSSI = %d dBm", rssi)
}

func (r *ConsoleReporter) Unhandled(e ncp.Event) {
	if s, ok := e.(fmt.Stringer); ok {
		r.println(r.warn, "Unhandled event: %s", s)
		return
	}
	r.println(r.warn, "Unhandled event: %s", e.Name())
}
