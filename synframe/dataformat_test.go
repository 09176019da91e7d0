package synframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDataFormatRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := DataFormat{
			PhasorPolar: rapid.Bool().Draw(t, "polar"),
			PhasorFloat: rapid.Bool().Draw(t, "phasorFloat"),
			AnalogFloat: rapid.Bool().Draw(t, "analogFloat"),
			FreqFloat:   rapid.Bool().Draw(t, "freqFloat"),
		}
		got := UnpackDataFormat(PackDataFormat(f))
		assert.Equal(t, f, got)
	})
}

func TestDataFormatUpperBitsIgnored(t *testing.T) {
	got := UnpackDataFormat(0xFFF0)
	assert.Equal(t, DataFormat{}, got)
}
