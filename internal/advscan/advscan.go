// Package advscan inspects raw advertising payloads.
//
// A payload is a run of AD structures, each shaped as
// [length][type][length-1 bytes of data]. Payloads come from arbitrary nearby
// devices, so anything truncated or malformed is treated as "no match" and
// never as a fault.
package advscan

import "github.com/go-ble/ble"

// AD types carrying lists of 16-bit service UUIDs.
const (
	TypeIncompleteUUID16 = 0x02
	TypeCompleteUUID16   = 0x03
)

// Filter reports whether an advertising payload is of interest.
type Filter func(payload []byte) bool

// ForService returns a Filter matching payloads that advertise uuid.
func ForService(uuid ble.UUID) Filter {
	return func(payload []byte) bool {
		return AdvertisesService(payload, uuid)
	}
}

// AdvertisesService reports whether payload carries a 16-bit service UUID list
// field whose value is exactly uuid (little-endian encoding, as in ble.UUID16).
//
// The function holds no state and is safe for concurrent use.
func AdvertisesService(payload []byte, uuid ble.UUID) bool {
	if uuid.Len() == 0 {
		return false
	}
	i := 0
	for i < len(payload) {
		l := int(payload[i])
		if l == 0 {
			// Empty structure, nothing to compare. Keep walking.
			i++
			continue
		}
		end := i + 1 + l
		if end > len(payload) {
			return false
		}
		switch payload[i+1] {
		case TypeIncompleteUUID16, TypeCompleteUUID16:
			if uuid.Equal(ble.UUID(payload[i+2 : end])) {
				return true
			}
		}
		i = end
	}
	return false
}
