package bgapi

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/thermo/internal/ncp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = ncp.Address{0xcc, 0xbb, 0xaa, 0x57, 0x0b, 0x00}

func TestCodec_EventRoundTrip(t *testing.T) {
	events := []ncp.Event{
		&ncp.BootEvent{Major: 3, Minor: 2, Patch: 4, Build: 199},
		&ncp.ScanReportEvent{PacketType: 0, Address: testAddress, AddressType: ncp.AddressRandom, RSSI: -61,
			Data: []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x09, 0x18}},
		&ncp.ConnectionOpenedEvent{Address: testAddress, AddressType: ncp.AddressPublic, Master: true, Connection: 1, Bonding: 0xff},
		&ncp.ConnectionClosedEvent{Reason: 0x1008, Connection: 1},
		&ncp.MtuExchangedEvent{Connection: 1, MTU: 247},
		&ncp.ServiceFoundEvent{Connection: 1, Service: 0x00010020, UUID: ble.UUID16(0x1809)},
		&ncp.CharacteristicFoundEvent{Connection: 1, Characteristic: 0x12, Properties: 0x20, UUID: ble.UUID16(0x2a1c)},
		&ncp.ProcedureCompletedEvent{Connection: 1, Result: 0},
		&ncp.CharacteristicValueEvent{Connection: 1, Characteristic: 0x12, ATTOpcode: 0x1d, Value: []byte{0x00, 0x32, 0x61, 0x00, 0xff}},
		&ncp.RssiEvent{Connection: 1, Status: 0, RSSI: -48},
	}

	c := NewCodec(nil)
	for _, e := range events {
		t.Run(e.Name(), func(t *testing.T) {
			f, err := c.EncodeEvent(e)
			require.NoError(t, err)
			assert.True(t, f.Event)

			got, err := c.DecodeEvent(f)
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestCodec_DecodeScanReportWireBytes(t *testing.T) {
	// Captured from an EFR32 NCP: legacy connectable advert on channel 37.
	payload := []byte{
		0x00,                               // packet_type
		0xcc, 0xbb, 0xaa, 0x57, 0x0b, 0x00, // address
		0x00,             // address_type
		0xff,             // bonding
		0x01, 0x00, 0xff, // phys, adv_sid
		0x7f,       // tx_power
		0xc3,       // rssi -61
		0x25,       // channel
		0x00, 0x00, // periodic_interval
		0x03, 0x02, 0x01, 0x06,
	}

	e, err := NewCodec(nil).DecodeEvent(Frame{Event: true, ID: MessageID{0x05, 0x01}, Payload: payload})
	require.NoError(t, err)

	sr, ok := e.(*ncp.ScanReportEvent)
	require.True(t, ok)
	assert.Equal(t, "00:0b:57:aa:bb:cc", sr.Address.String())
	assert.Equal(t, int8(-61), sr.RSSI)
	assert.Equal(t, []byte{0x02, 0x01, 0x06}, sr.Data)
}

func TestCodec_UnregisteredEventIsUnknown(t *testing.T) {
	f := Frame{Event: true, ID: MessageID{0x0a, 0x07}, Payload: []byte{1, 2}}

	e, err := NewCodec(nil).DecodeEvent(f)

	require.NoError(t, err)
	assert.Equal(t, &ncp.UnknownEvent{Class: 0x0a, Message: 0x07, Payload: []byte{1, 2}}, e)

	back, err := NewCodec(nil).EncodeEvent(e)
	require.NoError(t, err)
	assert.Equal(t, f, back, "unknown events MUST re-encode byte for byte")
}

func TestCodec_ShortEventPayload(t *testing.T) {
	_, err := NewCodec(nil).DecodeEvent(Frame{Event: true, ID: MessageID{0x09, 0x00}, Payload: []byte{1, 0xf7}})

	assert.ErrorIs(t, err, ErrShortFrame)
	assert.Contains(t, err.Error(), EvtGattMtuExchanged)
}

func TestCodec_DecodeEventRejectsResponse(t *testing.T) {
	_, err := NewCodec(nil).DecodeEvent(Frame{ID: MessageID{0x01, 0x00}})
	assert.Error(t, err)
}

func TestCodec_Responses(t *testing.T) {
	c := NewCodec(nil)

	ok, err := c.DecodeResponse(Frame{ID: MessageID{0x06, 0x04}, Payload: []byte{0x00, 0x00, 0x01}})
	require.NoError(t, err)
	assert.Equal(t, CmdConnectionOpen, ok.Command)
	assert.NoError(t, ok.Err())

	failed, err := c.DecodeResponse(Frame{ID: MessageID{0x05, 0x03}, Payload: []byte{0x02, 0x01}})
	require.NoError(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, failed.Err(), &cmdErr)
	assert.Equal(t, uint16(0x0102), cmdErr.Result)
	assert.Equal(t, "command scanner_start failed with result 0x0102", cmdErr.Error())

	_, err = c.DecodeResponse(Frame{ID: MessageID{0x05, 0x03}, Payload: []byte{0x02}})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestCodec_Commands(t *testing.T) {
	c := NewCodec(nil)

	f, err := c.Command(CmdGattDiscoverCharacteristics, []byte{1, 0x20, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, MessageID{0x09, 0x03}, f.ID)
	assert.False(t, f.Event)

	name, err := c.DecodeCommand(f)
	require.NoError(t, err)
	assert.Equal(t, CmdGattDiscoverCharacteristics, name)

	_, err = c.Command("flash_erase", nil)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = c.DecodeCommand(Frame{ID: MessageID{0x7f, 0x7f}})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestCodec_FollowsAPIOverrides(t *testing.T) {
	api := DefaultAPI()
	require.NoError(t, api.Apply([]byte("events:\n  connection_rssi: {class: 0x06, message: 0x12}\n")))
	c := NewCodec(api)

	e, err := c.DecodeEvent(Frame{Event: true, ID: MessageID{0x06, 0x12}, Payload: []byte{1, 0, 0xd0}})
	require.NoError(t, err)
	assert.Equal(t, &ncp.RssiEvent{Connection: 1, RSSI: -48}, e)

	e, err = c.DecodeEvent(Frame{Event: true, ID: MessageID{0x06, 0x03}, Payload: []byte{1, 0, 0xd0}})
	require.NoError(t, err)
	assert.IsType(t, &ncp.UnknownEvent{}, e, "the old ID MUST no longer decode as rssi")
}

func TestCodec_ConnectionEventsOnStockFirmware(t *testing.T) {
	// GOAL: Verify that the connection class events of the v3 firmware reach the right decoder
	//
	// TEST SCENARIO: connection_parameters (0x06/0x02) then connection_rssi (0x06/0x03) → unknown event, then an RSSI reading

	c := NewCodec(nil)

	params := Frame{Event: true, ID: MessageID{0x06, 0x02}, Payload: []byte{0x01, 0x28, 0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0xf7, 0x00}}
	e, err := c.DecodeEvent(params)
	require.NoError(t, err)
	assert.IsType(t, &ncp.UnknownEvent{}, e, "connection_parameters MUST NOT decode as an RSSI reading")

	e, err = c.DecodeEvent(Frame{Event: true, ID: MessageID{0x06, 0x03}, Payload: []byte{0x01, 0x00, 0xc4}})
	require.NoError(t, err)
	assert.Equal(t, &ncp.RssiEvent{Connection: 1, RSSI: -60}, e)
}
