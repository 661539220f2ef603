package bgapi

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/thermo/internal/groutine"
	"github.com/srg/thermo/internal/ncp"
)

// NodeOptions configures a Node.
type NodeOptions struct {
	// EventBuffer is how many decoded events may wait for the consumer
	// before the reader stops pulling frames off the link.
	EventBuffer int `default:"64"`

	Logger *logrus.Logger
}

// Node drives an NCP over a byte stream. It encodes commands, decodes
// events in a background reader, and logs command responses.
//
// Commands do not wait for their responses: a non-zero result is logged as
// a warning and the state machine keeps going on events alone.
type Node struct {
	codec  *Codec
	rw     io.ReadWriter
	fr     *FrameReader
	logger *logrus.Logger

	wmu sync.Mutex

	events chan ncp.Event
	stop   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

var _ ncp.Commander = (*Node)(nil)

// NewNode starts a Node over rw. A nil api means DefaultAPI.
func NewNode(rw io.ReadWriter, api *API, opts NodeOptions) *Node {
	defaults.SetDefaults(&opts)
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	n := &Node{
		codec:  NewCodec(api),
		rw:     rw,
		fr:     NewFrameReader(rw),
		logger: opts.Logger,
		events: make(chan ncp.Event, opts.EventBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	groutine.Go(context.Background(), "bgapi-reader", n.readLoop)
	return n
}

// Events returns decoded events in arrival order. The channel is closed when
// the link fails or the node is closed; Err tells which.
func (n *Node) Events() <-chan ncp.Event {
	return n.events
}

// Err returns the reason the event channel was closed.
func (n *Node) Err() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return n.err
}

// Close stops the reader. If the stream is an io.Closer it is closed too and
// Close waits for the reader to exit.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.stop)
		if c, ok := n.rw.(io.Closer); ok {
			err = c.Close()
			<-n.done
		}
	})
	return err
}

func (n *Node) closed() bool {
	select {
	case <-n.stop:
		return true
	default:
		return false
	}
}

func (n *Node) readLoop(ctx context.Context) {
	defer close(n.done)
	defer close(n.events)

	log := n.logger.WithField("goroutine", groutine.Name(ctx))
	for {
		f, err := n.fr.ReadFrame()
		if err != nil {
			if n.closed() {
				err = ErrClosed
			} else {
				log.WithError(err).Debug("Frame reader stopped")
			}
			n.errMu.Lock()
			n.err = err
			n.errMu.Unlock()
			return
		}

		if !f.Event {
			n.handleResponse(log, f)
			continue
		}

		e, err := n.codec.DecodeEvent(f)
		if err != nil {
			log.WithError(err).WithField("frame", f.String()).Warn("Dropping undecodable event")
			continue
		}
		select {
		case n.events <- e:
		case <-n.stop:
			n.errMu.Lock()
			n.err = ErrClosed
			n.errMu.Unlock()
			return
		}
	}
}

func (n *Node) handleResponse(log *logrus.Entry, f Frame) {
	resp, err := n.codec.DecodeResponse(f)
	if err != nil {
		log.WithError(err).Warn("Malformed command response")
		return
	}
	if err := resp.Err(); err != nil {
		log.WithError(err).Warn("Command rejected by NCP")
		return
	}
	log.WithField("command", resp.Command).Debug("Command accepted")
}

func (n *Node) send(name string, w *PayloadWriter) error {
	if n.closed() {
		return ErrClosed
	}
	f, err := n.codec.Command(name, w.Bytes())
	if err != nil {
		return err
	}
	b, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	n.wmu.Lock()
	defer n.wmu.Unlock()
	if _, err := n.rw.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	n.logger.WithField("command", name).Debugf("Sent % x", b)
	return nil
}

func (n *Node) StartScan(params ncp.ScanParams) error {
	return n.send(CmdScannerStart, new(PayloadWriter).U8(uint8(params.Phy)).U8(uint8(params.Mode)))
}

func (n *Node) StopScan() error {
	return n.send(CmdScannerStop, new(PayloadWriter))
}

func (n *Node) OpenConnection(addr ncp.Address, addrType ncp.AddressType, phy ncp.Phy) error {
	return n.send(CmdConnectionOpen, new(PayloadWriter).Address(addr).U8(uint8(addrType)).U8(uint8(phy)))
}

func (n *Node) DiscoverPrimaryServices(conn ncp.Connection) error {
	return n.send(CmdGattDiscoverPrimaryServices, new(PayloadWriter).U8(uint8(conn)))
}

func (n *Node) DiscoverCharacteristics(conn ncp.Connection, svc ncp.Service) error {
	return n.send(CmdGattDiscoverCharacteristics, new(PayloadWriter).U8(uint8(conn)).U32(uint32(svc)))
}

func (n *Node) SetCharacteristicNotification(conn ncp.Connection, ch ncp.Characteristic, mode ncp.NotificationMode) error {
	return n.send(CmdGattSetCharacteristicNotification,
		new(PayloadWriter).U8(uint8(conn)).U16(uint16(ch)).U8(uint8(mode)))
}

func (n *Node) SendCharacteristicConfirmation(conn ncp.Connection) error {
	return n.send(CmdGattSendCharacteristicConfirmation, new(PayloadWriter).U8(uint8(conn)))
}

func (n *Node) GetRssi(conn ncp.Connection) error {
	return n.send(CmdConnectionGetRssi, new(PayloadWriter).U8(uint8(conn)))
}

// Reset restarts the NCP. The firmware answers with a boot event instead of
// a response.
func (n *Node) Reset(mode ncp.ResetMode) error {
	return n.send(CmdSystemReset, new(PayloadWriter).U8(uint8(mode)))
}
