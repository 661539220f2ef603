package bgapi

import (
	"errors"
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/srg/thermo/internal/ncp"
)

type eventDecoder struct {
	name   string
	decode func(r *PayloadReader) ncp.Event
}

// Field layouts follow the Bluetooth API v3 event definitions. Trailing fields
// the client never uses are not read, so longer payloads decode fine.
var eventDecoders = map[string]func(r *PayloadReader) ncp.Event{
	EvtSystemBoot: func(r *PayloadReader) ncp.Event {
		e := &ncp.BootEvent{}
		e.Major = r.U16()
		e.Minor = r.U16()
		e.Patch = r.U16()
		e.Build = r.U16()
		return e
	},
	EvtScannerScanReport: func(r *PayloadReader) ncp.Event {
		e := &ncp.ScanReportEvent{}
		e.PacketType = r.U8()
		e.Address = r.Address()
		e.AddressType = ncp.AddressType(r.U8())
		_ = r.U8() // bonding
		_ = r.U8() // primary_phy
		_ = r.U8() // secondary_phy
		_ = r.U8() // adv_sid
		_ = r.I8() // tx_power
		e.RSSI = r.I8()
		_ = r.U8()  // channel
		_ = r.U16() // periodic_interval
		e.Data = r.Array()
		return e
	},
	EvtConnectionOpened: func(r *PayloadReader) ncp.Event {
		e := &ncp.ConnectionOpenedEvent{}
		e.Address = r.Address()
		e.AddressType = ncp.AddressType(r.U8())
		e.Master = r.U8() != 0
		e.Connection = ncp.Connection(r.U8())
		e.Bonding = r.U8()
		return e
	},
	EvtConnectionClosed: func(r *PayloadReader) ncp.Event {
		e := &ncp.ConnectionClosedEvent{}
		e.Reason = r.U16()
		e.Connection = ncp.Connection(r.U8())
		return e
	},
	EvtConnectionRssi: func(r *PayloadReader) ncp.Event {
		e := &ncp.RssiEvent{}
		e.Connection = ncp.Connection(r.U8())
		e.Status = r.U8()
		e.RSSI = r.I8()
		return e
	},
	EvtGattMtuExchanged: func(r *PayloadReader) ncp.Event {
		e := &ncp.MtuExchangedEvent{}
		e.Connection = ncp.Connection(r.U8())
		e.MTU = r.U16()
		return e
	},
	EvtGattService: func(r *PayloadReader) ncp.Event {
		e := &ncp.ServiceFoundEvent{}
		e.Connection = ncp.Connection(r.U8())
		e.Service = ncp.Service(r.U32())
		e.UUID = ble.UUID(r.Array())
		return e
	},
	EvtGattCharacteristic: func(r *PayloadReader) ncp.Event {
		e := &ncp.CharacteristicFoundEvent{}
		e.Connection = ncp.Connection(r.U8())
		e.Characteristic = ncp.Characteristic(r.U16())
		e.Properties = r.U8()
		e.UUID = ble.UUID(r.Array())
		return e
	},
	EvtGattCharacteristicValue: func(r *PayloadReader) ncp.Event {
		e := &ncp.CharacteristicValueEvent{}
		e.Connection = ncp.Connection(r.U8())
		e.Characteristic = ncp.Characteristic(r.U16())
		e.ATTOpcode = r.U8()
		e.Offset = r.U16()
		e.Value = r.Array()
		return e
	},
	EvtGattProcedureCompleted: func(r *PayloadReader) ncp.Event {
		e := &ncp.ProcedureCompletedEvent{}
		e.Connection = ncp.Connection(r.U8())
		e.Result = r.U16()
		return e
	},
}

// Response is a decoded command response.
type Response struct {
	Command string
	ID      MessageID
	Result  uint16
	Payload []byte
}

// Err returns a *CommandError when the response carries a non-zero result.
func (r Response) Err() error {
	if r.Result == 0 {
		return nil
	}
	return &CommandError{Command: r.Command, Result: r.Result}
}

// Codec translates between frames and typed messages for one API table.
// It is safe for concurrent use.
type Codec struct {
	api      *API
	events   *hashmap.Map[uint16, eventDecoder]
	commands *hashmap.Map[uint16, string]
}

// NewCodec builds a codec for api. A nil api means DefaultAPI.
func NewCodec(api *API) *Codec {
	if api == nil {
		api = DefaultAPI()
	}
	c := &Codec{
		api:      api,
		events:   hashmap.New[uint16, eventDecoder](),
		commands: hashmap.New[uint16, string](),
	}
	for pair := api.Commands.Oldest(); pair != nil; pair = pair.Next() {
		c.commands.Set(pair.Value.key(), pair.Key)
	}
	for pair := api.Events.Oldest(); pair != nil; pair = pair.Next() {
		if fn, ok := eventDecoders[pair.Key]; ok {
			c.events.Set(pair.Value.key(), eventDecoder{name: pair.Key, decode: fn})
		}
	}
	return c
}

// API returns the table the codec was built from.
func (c *Codec) API() *API {
	return c.api
}

// DecodeEvent turns an event frame into a typed event. Events missing from
// the API table become *ncp.UnknownEvent.
func (c *Codec) DecodeEvent(f Frame) (ncp.Event, error) {
	if !f.Event {
		return nil, fmt.Errorf("frame %s is not an event", f.ID)
	}
	dec, ok := c.events.Get(f.ID.key())
	if !ok {
		return &ncp.UnknownEvent{Class: f.ID.Class, Message: f.ID.Message, Payload: f.Payload}, nil
	}
	r := NewPayloadReader(f.Payload)
	e := dec.decode(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", dec.name, err)
	}
	return e, nil
}

// DecodeResponse reads the result code of a response frame.
func (c *Codec) DecodeResponse(f Frame) (Response, error) {
	if f.Event {
		return Response{}, fmt.Errorf("frame %s is not a response", f.ID)
	}
	name, ok := c.commands.Get(f.ID.key())
	if !ok {
		name = f.ID.String()
	}
	r := NewPayloadReader(f.Payload)
	resp := Response{Command: name, ID: f.ID, Result: r.U16(), Payload: f.Payload}
	if err := r.Err(); err != nil {
		return resp, fmt.Errorf("decode %s response: %w", name, err)
	}
	return resp, nil
}

// DecodeCommand returns the name of the command in a command frame.
func (c *Codec) DecodeCommand(f Frame) (string, error) {
	name, ok := c.commands.Get(f.ID.key())
	if !ok {
		return "", fmt.Errorf("%w: command %s", ErrUnknownMessage, f.ID)
	}
	return name, nil
}

// Command builds a command frame.
func (c *Codec) Command(name string, params []byte) (Frame, error) {
	id, ok := c.api.Commands.Get(name)
	if !ok {
		return Frame{}, fmt.Errorf("%w: command %q", ErrUnknownMessage, name)
	}
	return Frame{ID: id, Payload: params}, nil
}

// Response builds the response frame for a command.
func (c *Codec) Response(name string, params []byte) (Frame, error) {
	return c.Command(name, params)
}

// EncodeEvent builds the frame for a typed event.
func (c *Codec) EncodeEvent(e ncp.Event) (Frame, error) {
	enc := &eventEncoder{}
	if err := e.Dispatch(enc); err != nil {
		return Frame{}, err
	}
	if enc.raw != nil {
		return Frame{Event: true, ID: *enc.raw, Payload: enc.w.Bytes()}, nil
	}
	id, ok := c.api.Events.Get(enc.name)
	if !ok {
		return Frame{}, fmt.Errorf("%w: event %q", ErrUnknownMessage, enc.name)
	}
	return Frame{Event: true, ID: id, Payload: enc.w.Bytes()}, nil
}

var errUnencodable = errors.New("event cannot be encoded")

// eventEncoder lays events out in the same field order eventDecoders reads them.
type eventEncoder struct {
	name string
	raw  *MessageID
	w    PayloadWriter
}

var _ ncp.Handler = (*eventEncoder)(nil)

func (x *eventEncoder) OnBoot(e *ncp.BootEvent) error {
	x.name = EvtSystemBoot
	x.w.U16(e.Major).U16(e.Minor).U16(e.Patch).U16(e.Build).
		U32(0). // bootloader
		U16(0). // hw
		U32(0)  // hash
	return nil
}

func (x *eventEncoder) OnScanReport(e *ncp.ScanReportEvent) error {
	x.name = EvtScannerScanReport
	x.w.U8(e.PacketType).Address(e.Address).U8(uint8(e.AddressType)).
		U8(0xff). // bonding
		U8(uint8(ncp.Phy1M)).
		U8(0).    // secondary_phy
		U8(0xff). // adv_sid
		I8(127).  // tx_power unavailable
		I8(e.RSSI).
		U8(37).
		U16(0).
		Array(e.Data)
	return nil
}

func (x *eventEncoder) OnConnectionOpened(e *ncp.ConnectionOpenedEvent) error {
	x.name = EvtConnectionOpened
	var master uint8
	if e.Master {
		master = 1
	}
	x.w.Address(e.Address).U8(uint8(e.AddressType)).U8(master).U8(uint8(e.Connection)).U8(e.Bonding).
		U8(0xff) // advertiser
	return nil
}

func (x *eventEncoder) OnConnectionClosed(e *ncp.ConnectionClosedEvent) error {
	x.name = EvtConnectionClosed
	x.w.U16(e.Reason).U8(uint8(e.Connection))
	return nil
}

func (x *eventEncoder) OnMtuExchanged(e *ncp.MtuExchangedEvent) error {
	x.name = EvtGattMtuExchanged
	x.w.U8(uint8(e.Connection)).U16(e.MTU)
	return nil
}

func (x *eventEncoder) OnServiceFound(e *ncp.ServiceFoundEvent) error {
	x.name = EvtGattService
	x.w.U8(uint8(e.Connection)).U32(uint32(e.Service)).Array(e.UUID)
	return nil
}

func (x *eventEncoder) OnCharacteristicFound(e *ncp.CharacteristicFoundEvent) error {
	x.name = EvtGattCharacteristic
	x.w.U8(uint8(e.Connection)).U16(uint16(e.Characteristic)).U8(e.Properties).Array(e.UUID)
	return nil
}

func (x *eventEncoder) OnProcedureCompleted(e *ncp.ProcedureCompletedEvent) error {
	x.name = EvtGattProcedureCompleted
	x.w.U8(uint8(e.Connection)).U16(e.Result)
	return nil
}

func (x *eventEncoder) OnCharacteristicValue(e *ncp.CharacteristicValueEvent) error {
	x.name = EvtGattCharacteristicValue
	x.w.U8(uint8(e.Connection)).U16(uint16(e.Characteristic)).U8(e.ATTOpcode).U16(e.Offset).Array(e.Value)
	return nil
}

func (x *eventEncoder) OnRssi(e *ncp.RssiEvent) error {
	x.name = EvtConnectionRssi
	x.w.U8(uint8(e.Connection)).U8(e.Status).I8(e.RSSI)
	return nil
}

func (x *eventEncoder) OnUnknown(e *ncp.UnknownEvent) error {
	if e == nil {
		return errUnencodable
	}
	x.raw = &MessageID{Class: e.Class, Message: e.Message}
	x.w.b = append(x.w.b, e.Payload...)
	return nil
}
