// Package ncpsim emulates an NCP that sees one Health Thermometer peripheral.
//
// The simulator speaks the same frames as the firmware: it answers every
// command with a response and produces the events a real radio would, in the
// order a real radio would. It is used by tests and by `thermo sim`, which
// puts it behind a pseudo-terminal so the client can be run end to end
// without hardware.
package ncpsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/thermo/internal/bgapi"
	"github.com/srg/thermo/internal/groutine"
	"github.com/srg/thermo/internal/ncp"
)

// GATT layout of the simulated thermometer.
const (
	genericAccessService   ncp.Service        = 0x00010005
	thermometerService     ncp.Service        = 0x000c0010
	temperatureTypeChar    ncp.Characteristic = 0x000e
	temperatureMeasurement ncp.Characteristic = 0x0011

	simConnection ncp.Connection = 1
	simMTU        uint16         = 247

	propIndicate = 0x20
	propRead     = 0x02

	resultNotSupported uint16 = 0x000f
)

// heartRateAddress is another peripheral heard before the thermometer.
var heartRateAddress = ncp.Address{0x01, 0x23, 0x45, 0x67, 0x89, 0xca}

// Options configures a Simulator.
type Options struct {
	// Address of the simulated thermometer.
	Address string `default:"00:0b:57:aa:bb:cc"`

	// Interval between temperature indications.
	Interval time.Duration `default:"1s"`

	// StartMilliCelsius is the first temperature sent; each indication adds
	// StepMilliCelsius.
	StartMilliCelsius uint32 `default:"36550"`
	StepMilliCelsius  int32  `default:"10"`

	RSSI int8 `default:"-55"`

	Logger *logrus.Logger
}

// Simulator is an emulated NCP bound to one byte stream.
type Simulator struct {
	codec  *bgapi.Codec
	rw     io.ReadWriter
	fr     *bgapi.FrameReader
	logger *logrus.Logger

	address  ncp.Address
	interval time.Duration
	step     int32
	rssi     int8

	temperature int64
	indicating  bool
	unconfirmed bool
}

// DefaultOptions returns a thermometer near body temperature that warms by
// 0.01 C every second.
func DefaultOptions() Options {
	var opts Options
	defaults.SetDefaults(&opts)
	return opts
}

// New creates a Simulator over rw. Options are used as given, zeros included;
// start from DefaultOptions for the usual values. An empty Address and a nil
// Logger fall back to their defaults.
func New(rw io.ReadWriter, opts Options) (*Simulator, error) {
	if opts.Address == "" {
		opts.Address = DefaultOptions().Address
	}
	addr, err := ncp.ParseAddress(opts.Address)
	if err != nil {
		return nil, fmt.Errorf("simulator address: %w", err)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("simulator interval must be positive, got %s", opts.Interval)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	return &Simulator{
		codec:       bgapi.NewCodec(nil),
		rw:          rw,
		fr:          bgapi.NewFrameReader(rw),
		logger:      opts.Logger,
		address:     addr,
		interval:    opts.Interval,
		step:        opts.StepMilliCelsius,
		rssi:        opts.RSSI,
		temperature: int64(opts.StartMilliCelsius),
	}, nil
}

// Serve answers commands until ctx is done or the stream ends. It returns nil
// when the peer hangs up.
//
// The caller owns rw; closing it is the only way to unblock a pending read
// once ctx is done.
func (s *Simulator) Serve(ctx context.Context) error {
	type result struct {
		frame bgapi.Frame
		err   error
	}
	frames := make(chan result, 8)
	stop := make(chan struct{})
	defer close(stop)

	groutine.Go(ctx, "ncpsim-reader", func(ctx context.Context) {
		for {
			f, err := s.fr.ReadFrame()
			select {
			case frames <- result{f, err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-frames:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return nil
				}
				return r.err
			}
			if err := s.handle(r.frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.indicate(); err != nil {
				return err
			}
		}
	}
}

func (s *Simulator) handle(f bgapi.Frame) error {
	if f.Event {
		s.logger.WithField("frame", f.String()).Warn("Ignoring event frame sent to the NCP")
		return nil
	}

	name, err := s.codec.DecodeCommand(f)
	if err != nil {
		s.logger.WithError(err).Warn("Rejecting command")
		return s.write(bgapi.Frame{ID: f.ID, Payload: new(bgapi.PayloadWriter).U16(resultNotSupported).Bytes()})
	}
	s.logger.WithField("command", name).Debugf("Command [% x]", f.Payload)

	p := bgapi.NewPayloadReader(f.Payload)
	switch name {
	case bgapi.CmdSystemReset:
		_ = p.U8()
		s.indicating = false
		s.unconfirmed = false
		return s.emit(&ncp.BootEvent{Major: 3, Minor: 2, Patch: 0, Build: 150})

	case bgapi.CmdScannerStart:
		if err := s.respond(name); err != nil {
			return err
		}
		return s.advertise()

	case bgapi.CmdConnectionOpen:
		addr := p.Address()
		addrType := ncp.AddressType(p.U8())
		if err := p.Err(); err != nil {
			return s.reject(name, err)
		}
		if err := s.respond(name, uint8(simConnection)); err != nil {
			return err
		}
		return s.emit(
			&ncp.ConnectionOpenedEvent{Address: addr, AddressType: addrType, Master: true, Connection: simConnection, Bonding: 0xff},
			&ncp.MtuExchangedEvent{Connection: simConnection, MTU: simMTU},
		)

	case bgapi.CmdGattDiscoverPrimaryServices:
		conn := ncp.Connection(p.U8())
		if err := s.respond(name); err != nil {
			return err
		}
		return s.emit(
			&ncp.ServiceFoundEvent{Connection: conn, Service: genericAccessService, UUID: ble.UUID16(0x1800)},
			&ncp.ServiceFoundEvent{Connection: conn, Service: thermometerService, UUID: ble.UUID16(0x1809)},
			&ncp.ProcedureCompletedEvent{Connection: conn},
		)

	case bgapi.CmdGattDiscoverCharacteristics:
		conn := ncp.Connection(p.U8())
		svc := ncp.Service(p.U32())
		if err := s.respond(name); err != nil {
			return err
		}
		if svc != thermometerService {
			return s.emit(&ncp.ProcedureCompletedEvent{Connection: conn})
		}
		return s.emit(
			&ncp.CharacteristicFoundEvent{Connection: conn, Characteristic: temperatureTypeChar, Properties: propRead, UUID: ble.UUID16(0x2a1d)},
			&ncp.CharacteristicFoundEvent{Connection: conn, Characteristic: temperatureMeasurement, Properties: propIndicate, UUID: ble.UUID16(0x2a1c)},
			&ncp.ProcedureCompletedEvent{Connection: conn},
		)

	case bgapi.CmdGattSetCharacteristicNotification:
		_ = p.U8()
		ch := ncp.Characteristic(p.U16())
		mode := ncp.NotificationMode(p.U8())
		if err := p.Err(); err != nil {
			return s.reject(name, err)
		}
		if ch == temperatureMeasurement {
			s.indicating = mode == ncp.Indication
			s.unconfirmed = false
			s.logger.WithField("mode", mode.String()).Info("Temperature measurement subscription changed")
		}
		return s.respond(name)

	case bgapi.CmdGattSendCharacteristicConfirmation:
		s.unconfirmed = false
		return s.respond(name)

	case bgapi.CmdConnectionGetRssi:
		conn := ncp.Connection(p.U8())
		if err := s.respond(name); err != nil {
			return err
		}
		return s.emit(&ncp.RssiEvent{Connection: conn, RSSI: s.rssi})

	default:
		return s.respond(name)
	}
}

// advertise reports an unrelated peripheral, then the thermometer.
func (s *Simulator) advertise() error {
	other, err := adv.NewPacket(
		adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
		adv.AllUUID(ble.UUID16(0x180d)),
		adv.CompleteName("HRM"),
	)
	if err != nil {
		return fmt.Errorf("build advertisement: %w", err)
	}
	thermo, err := adv.NewPacket(
		adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
		adv.AllUUID(ble.UUID16(0x1809)),
		adv.CompleteName("Thermometer"),
	)
	if err != nil {
		return fmt.Errorf("build advertisement: %w", err)
	}

	return s.emit(
		&ncp.ScanReportEvent{Address: heartRateAddress, AddressType: ncp.AddressRandom, RSSI: s.rssi - 20, Data: other.Bytes()},
		&ncp.ScanReportEvent{Address: s.address, AddressType: ncp.AddressPublic, RSSI: s.rssi, Data: thermo.Bytes()},
	)
}

// indicate sends the next temperature if indications are on and the previous
// one was confirmed.
func (s *Simulator) indicate() error {
	if !s.indicating || s.unconfirmed {
		return nil
	}
	s.unconfirmed = true

	milli := uint32(s.temperature) & 0xffffff
	value := []byte{0x00, byte(milli), byte(milli >> 8), byte(milli >> 16), 0xfd}
	s.temperature += int64(s.step)
	if s.temperature < 0 {
		s.temperature = 0
	}

	return s.emit(&ncp.CharacteristicValueEvent{
		Connection:     simConnection,
		Characteristic: temperatureMeasurement,
		ATTOpcode:      0x1d, // handle value indication
		Value:          value,
	})
}

func (s *Simulator) respond(name string, extra ...uint8) error {
	w := new(bgapi.PayloadWriter).U16(0)
	for _, b := range extra {
		w.U8(b)
	}
	f, err := s.codec.Response(name, w.Bytes())
	if err != nil {
		return err
	}
	return s.write(f)
}

func (s *Simulator) reject(name string, cause error) error {
	s.logger.WithError(cause).WithField("command", name).Warn("Malformed command")
	f, err := s.codec.Response(name, new(bgapi.PayloadWriter).U16(resultNotSupported).Bytes())
	if err != nil {
		return err
	}
	return s.write(f)
}

func (s *Simulator) emit(events ...ncp.Event) error {
	for _, e := range events {
		f, err := s.codec.EncodeEvent(e)
		if err != nil {
			return err
		}
		s.logger.WithField("event", e.Name()).Debug("Emitting event")
		if err := s.write(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) write(f bgapi.Frame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := s.rw.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", f.ID, err)
	}
	return nil
}
