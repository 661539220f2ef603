package thermo

import (
	"context"
	"errors"

	"github.com/srg/thermo/internal/ncp"
)

// ErrSourceClosed is returned by Run when the event source ends without an error.
var ErrSourceClosed = errors.New("event source closed")

// EventSource delivers NCP events in order.
type EventSource interface {
	// Events is closed when the source stops.
	Events() <-chan ncp.Event
	// Err reports why the source stopped, once Events is closed.
	Err() error
}

// Run feeds events from src to the client one at a time until ctx is done,
// the source closes, or a command fails. Each event is handled to completion
// before the next one is received.
func (c *Client) Run(ctx context.Context, src EventSource) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				if err := src.Err(); err != nil {
					return err
				}
				return ErrSourceClosed
			}
			if err := c.HandleEvent(e); err != nil {
				return err
			}
		}
	}
}
