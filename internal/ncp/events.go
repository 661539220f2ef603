package ncp

import (
	"fmt"

	"github.com/go-ble/ble"
)

// Event is one typed event delivered by the NCP.
//
// The set of events is closed: every implementation lives in this package and
// Dispatch calls exactly one Handler method. A new event kind adds a method to
// Handler, so every consumer has to decide what to do with it before the tree
// compiles again.
type Event interface {
	// Name is the protocol name of the event, e.g. "gatt_service".
	Name() string
	// Dispatch routes the event to the matching Handler method.
	Dispatch(h Handler) error

	sealed()
}

// Handler consumes events, one method per event kind.
type Handler interface {
	OnBoot(e *BootEvent) error
	OnScanReport(e *ScanReportEvent) error
	OnConnectionOpened(e *ConnectionOpenedEvent) error
	OnConnectionClosed(e *ConnectionClosedEvent) error
	OnMtuExchanged(e *MtuExchangedEvent) error
	OnServiceFound(e *ServiceFoundEvent) error
	OnCharacteristicFound(e *CharacteristicFoundEvent) error
	OnProcedureCompleted(e *ProcedureCompletedEvent) error
	OnCharacteristicValue(e *CharacteristicValueEvent) error
	OnRssi(e *RssiEvent) error
	OnUnknown(e *UnknownEvent) error
}

// BootEvent is emitted once the NCP stack has started.
type BootEvent struct {
	Major uint16
	Minor uint16
	Patch uint16
	Build uint16
}

func (*BootEvent) Name() string               { return "system_boot" }
func (e *BootEvent) Dispatch(h Handler) error { return h.OnBoot(e) }
func (*BootEvent) sealed()                    {}

// ScanReportEvent carries one received advertisement or scan response.
type ScanReportEvent struct {
	PacketType  uint8
	Address     Address
	AddressType AddressType
	RSSI        int8
	Data        []byte
}

func (*ScanReportEvent) Name() string               { return "scanner_scan_report" }
func (e *ScanReportEvent) Dispatch(h Handler) error { return h.OnScanReport(e) }
func (*ScanReportEvent) sealed()                    {}

// ConnectionOpenedEvent reports a new link.
type ConnectionOpenedEvent struct {
	Address     Address
	AddressType AddressType
	Master      bool
	Connection  Connection
	Bonding     uint8
}

func (*ConnectionOpenedEvent) Name() string               { return "connection_opened" }
func (e *ConnectionOpenedEvent) Dispatch(h Handler) error { return h.OnConnectionOpened(e) }
func (*ConnectionOpenedEvent) sealed()                    {}

// ConnectionClosedEvent reports the loss of a link.
type ConnectionClosedEvent struct {
	Reason     uint16
	Connection Connection
}

func (*ConnectionClosedEvent) Name() string               { return "connection_closed" }
func (e *ConnectionClosedEvent) Dispatch(h Handler) error { return h.OnConnectionClosed(e) }
func (*ConnectionClosedEvent) sealed()                    {}

// MtuExchangedEvent reports the negotiated ATT MTU.
type MtuExchangedEvent struct {
	Connection Connection
	MTU        uint16
}

func (*MtuExchangedEvent) Name() string               { return "gatt_mtu_exchanged" }
func (e *MtuExchangedEvent) Dispatch(h Handler) error { return h.OnMtuExchanged(e) }
func (*MtuExchangedEvent) sealed()                    {}

// ServiceFoundEvent reports one primary service found during discovery.
type ServiceFoundEvent struct {
	Connection Connection
	Service    Service
	UUID       ble.UUID
}

func (*ServiceFoundEvent) Name() string               { return "gatt_service" }
func (e *ServiceFoundEvent) Dispatch(h Handler) error { return h.OnServiceFound(e) }
func (*ServiceFoundEvent) sealed()                    {}

// CharacteristicFoundEvent reports one characteristic found during discovery.
type CharacteristicFoundEvent struct {
	Connection     Connection
	Characteristic Characteristic
	Properties     uint8
	UUID           ble.UUID
}

func (*CharacteristicFoundEvent) Name() string               { return "gatt_characteristic" }
func (e *CharacteristicFoundEvent) Dispatch(h Handler) error { return h.OnCharacteristicFound(e) }
func (*CharacteristicFoundEvent) sealed()                    {}

// ProcedureCompletedEvent ends any GATT procedure. The NCP does not say which one.
type ProcedureCompletedEvent struct {
	Connection Connection
	Result     uint16
}

func (*ProcedureCompletedEvent) Name() string               { return "gatt_procedure_completed" }
func (e *ProcedureCompletedEvent) Dispatch(h Handler) error { return h.OnProcedureCompleted(e) }
func (*ProcedureCompletedEvent) sealed()                    {}

// CharacteristicValueEvent carries a value received from the peer (read, notification or indication).
type CharacteristicValueEvent struct {
	Connection     Connection
	Characteristic Characteristic
	ATTOpcode      uint8
	Offset         uint16
	Value          []byte
}

func (*CharacteristicValueEvent) Name() string               { return "gatt_characteristic_value" }
func (e *CharacteristicValueEvent) Dispatch(h Handler) error { return h.OnCharacteristicValue(e) }
func (*CharacteristicValueEvent) sealed()                    {}

// RssiEvent answers a GetRssi command.
type RssiEvent struct {
	Connection Connection
	Status     uint8
	RSSI       int8
}

func (*RssiEvent) Name() string               { return "connection_rssi" }
func (e *RssiEvent) Dispatch(h Handler) error { return h.OnRssi(e) }
func (*RssiEvent) sealed()                    {}

// UnknownEvent is any event the decoder has no typed representation for.
type UnknownEvent struct {
	Class   uint8
	Message uint8
	Payload []byte
}

func (e *UnknownEvent) Name() string {
	return fmt.Sprintf("event(0x%02x,0x%02x)", e.Class, e.Message)
}
func (e *UnknownEvent) Dispatch(h Handler) error { return h.OnUnknown(e) }
func (*UnknownEvent) sealed()                    {}

func (e *UnknownEvent) String() string {
	return fmt.Sprintf("%s payload=% x", e.Name(), e.Payload)
}
