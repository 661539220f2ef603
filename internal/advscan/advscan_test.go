package advscan

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	healthThermometer = ble.UUID16(0x1809)
	heartRate         = ble.UUID16(0x180d)
)

// packet builds an advertising payload with the go-ble packet builder.
func packet(t *testing.T, fields ...adv.Field) []byte {
	t.Helper()
	p, err := adv.NewPacket(fields...)
	require.NoError(t, err, "packet construction MUST succeed")
	return p.Bytes()
}

func TestAdvertisesService(t *testing.T) {
	tests := []struct {
		name     string
		payload  func(t *testing.T) []byte
		expected bool
	}{
		{
			name: "complete list with target",
			payload: func(t *testing.T) []byte {
				return packet(t,
					adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
					adv.AllUUID(healthThermometer),
				)
			},
			expected: true,
		},
		{
			name: "incomplete list with target",
			payload: func(t *testing.T) []byte {
				return packet(t, adv.SomeUUID(healthThermometer))
			},
			expected: true,
		},
		{
			name: "target after a name field",
			payload: func(t *testing.T) []byte {
				return packet(t,
					adv.Flags(adv.FlagGeneralDiscoverable),
					adv.CompleteName("Thermometer"),
					adv.AllUUID(healthThermometer),
				)
			},
			expected: true,
		},
		{
			name: "different service",
			payload: func(t *testing.T) []byte {
				return packet(t, adv.Flags(adv.FlagGeneralDiscoverable), adv.AllUUID(heartRate))
			},
			expected: false,
		},
		{
			name: "unrelated field types only",
			payload: func(t *testing.T) []byte {
				return packet(t, adv.Flags(adv.FlagGeneralDiscoverable), adv.CompleteName("0918"))
			},
			expected: false,
		},
		{
			name: "uuid bytes inside manufacturer data",
			payload: func(t *testing.T) []byte {
				return packet(t, adv.ManufacturerData(0x02ff, []byte{0x09, 0x18}))
			},
			expected: false,
		},
		{
			name:     "empty payload",
			payload:  func(*testing.T) []byte { return nil },
			expected: false,
		},
		{
			name: "list holding two uuids is not an exact match",
			payload: func(*testing.T) []byte {
				return []byte{0x05, TypeCompleteUUID16, 0x09, 0x18, 0x0d, 0x18}
			},
			expected: false,
		},
		{
			name: "big endian encoding does not match",
			payload: func(*testing.T) []byte {
				return []byte{0x03, TypeCompleteUUID16, 0x18, 0x09}
			},
			expected: false,
		},
		{
			name: "zero length structure is skipped",
			payload: func(*testing.T) []byte {
				return []byte{0x00, 0x03, TypeCompleteUUID16, 0x09, 0x18}
			},
			expected: true,
		},
		{
			name: "trailing zero padding",
			payload: func(*testing.T) []byte {
				return []byte{0x03, TypeCompleteUUID16, 0x09, 0x18, 0x00, 0x00, 0x00}
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AdvertisesService(tt.payload(t), healthThermometer))
		})
	}
}

func TestAdvertisesService_MalformedNeverPanics(t *testing.T) {
	// GOAL: Verify truncated or malformed payloads resolve to "no match"
	//
	// TEST SCENARIO: Feed payloads whose length bytes point past the end → no panic → false

	payloads := map[string][]byte{
		"lone length byte":           {0x03},
		"length past end":            {0x05, TypeCompleteUUID16, 0x09, 0x18},
		"second field truncated":     {0x02, 0x01, 0x06, 0x03, TypeCompleteUUID16, 0x09},
		"length 0xff":                {0xff, TypeCompleteUUID16, 0x09, 0x18},
		"empty uuid list":            {0x01, TypeCompleteUUID16},
		"type byte only at the tail": {0x02, 0x01, 0x06, 0x01},
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, AdvertisesService(payload, healthThermometer), "malformed payload MUST NOT match")
			})
		})
	}
}

func TestAdvertisesService_EmptyTargetNeverMatches(t *testing.T) {
	assert.False(t, AdvertisesService([]byte{0x01, TypeCompleteUUID16}, nil))
	assert.False(t, AdvertisesService([]byte{0x01, TypeCompleteUUID16}, ble.UUID{}))
}

func TestForService(t *testing.T) {
	match := ForService(healthThermometer)

	assert.True(t, match([]byte{0x03, TypeIncompleteUUID16, 0x09, 0x18}))
	assert.False(t, match([]byte{0x03, TypeIncompleteUUID16, 0x0d, 0x18}))
}

func BenchmarkAdvertisesService(b *testing.B) {
	p, err := adv.NewPacket(
		adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
		adv.CompleteName("Thermometer Example"),
		adv.AllUUID(healthThermometer),
	)
	if err != nil {
		b.Fatal(err)
	}
	payload := p.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = AdvertisesService(payload, healthThermometer)
	}
}
