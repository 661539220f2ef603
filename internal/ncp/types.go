// Package ncp describes the typed surface of a Bluetooth radio co-processor
// (NCP): the events it delivers, the commands it accepts and the opaque
// handles that flow between the two.
//
// The package is transport-agnostic. Wire framing lives in internal/bgapi;
// protocol decisions live in internal/thermo.
package ncp

import (
	"fmt"
	"net"
)

// Connection identifies an open link on the NCP.
type Connection uint8

// Service is the opaque handle the NCP assigns to a discovered GATT service.
type Service uint32

// Characteristic is the opaque handle the NCP assigns to a discovered characteristic.
type Characteristic uint16

// AddressType is the Bluetooth address type reported with an advertisement.
type AddressType uint8

const (
	AddressPublic      AddressType = 0
	AddressRandom      AddressType = 1
	AddressPublicIdent AddressType = 2
	AddressRandomIdent AddressType = 3
	AddressAnonymous   AddressType = 0xff
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "public"
	case AddressRandom:
		return "random"
	case AddressPublicIdent:
		return "public_identity"
	case AddressRandomIdent:
		return "random_identity"
	case AddressAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Address is a Bluetooth device address in wire order (least significant byte first).
type Address [6]byte

// ParseAddress parses the familiar colon-separated form ("00:0b:57:aa:bb:cc").
func ParseAddress(s string) (Address, error) {
	var a Address
	hw, err := net.ParseMAC(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(hw) != len(a) {
		return a, fmt.Errorf("invalid address %q: want 6 bytes, got %d", s, len(hw))
	}
	for i := range a {
		a[i] = hw[len(hw)-1-i]
	}
	return a, nil
}

// String prints the address most significant byte first.
func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[5], a[4], a[3], a[2], a[1], a[0])
}

// Phy selects the LE physical layer.
type Phy uint8

const (
	Phy1M    Phy = 1
	Phy2M    Phy = 2
	PhyCoded Phy = 4
)

// DiscoverMode is the GAP discovery mode used while scanning.
type DiscoverMode uint8

const (
	DiscoverLimited     DiscoverMode = 0
	DiscoverGeneric     DiscoverMode = 1
	DiscoverObservation DiscoverMode = 2
)

// ScanParams are the arguments of StartScan.
type ScanParams struct {
	Phy  Phy
	Mode DiscoverMode
}

// NotificationMode selects notifications or indications on a characteristic.
type NotificationMode uint8

const (
	NotificationDisable NotificationMode = 0
	Notification        NotificationMode = 1
	Indication          NotificationMode = 2
)

func (m NotificationMode) String() string {
	switch m {
	case NotificationDisable:
		return "disable"
	case Notification:
		return "notification"
	case Indication:
		return "indication"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ResetMode is the argument of the system reset command.
type ResetMode uint8

const (
	ResetNormal     ResetMode = 0
	ResetBootloader ResetMode = 1
)
