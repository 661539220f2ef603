package thermo

import (
	"errors"
	"fmt"
)

// ErrShortValue is returned when a Temperature Measurement value is shorter
// than the flags byte plus a 24-bit mantissa.
var ErrShortValue = errors.New("temperature measurement value too short")

const temperatureValueLen = 4

// TemperatureReading is a decoded Temperature Measurement value.
//
// Raw is the 24-bit mantissa in thousandths of a degree Celsius. The
// peripheral firmware always uses that fixed exponent, so neither the flags
// byte nor the FLOAT exponent byte is consulted.
type TemperatureReading struct {
	Raw uint32
}

// Whole returns the integer degrees, truncated.
func (r TemperatureReading) Whole() uint32 {
	return r.Raw / 1000
}

// Hundredths returns the fractional part in hundredths of a degree, truncated.
func (r TemperatureReading) Hundredths() uint32 {
	return (r.Raw / 10) % 100
}

func (r TemperatureReading) String() string {
	return fmt.Sprintf("%d.%02d C", r.Whole(), r.Hundredths())
}

// DecodeTemperature decodes the raw characteristic value of a Temperature
// Measurement indication: byte 0 is flags, bytes 1..3 a little-endian mantissa.
func DecodeTemperature(value []byte) (TemperatureReading, error) {
	if len(value) < temperatureValueLen {
		return TemperatureReading{}, fmt.Errorf("%w: got %d bytes, want at least %d", ErrShortValue, len(value), temperatureValueLen)
	}
	raw := uint32(value[1]) | uint32(value[2])<<8 | uint32(value[3])<<16
	return TemperatureReading{Raw: raw}, nil
}
