package synframe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfigFrame() *ConfigFrame {
	return &ConfigFrame{
		IDCode:   1001,
		TimeBase: 1000000,
		DataRate: 30,
		Streams: []StreamConfig{
			{
				StationName:  "SUB1",
				IDCode:       1001,
				Format:       DataFormat{PhasorPolar: true, PhasorFloat: false, AnalogFloat: false, FreqFloat: false},
				PhasorNames:  []string{"VA"},
				AnalogNames:  []string{"TAP"},
				DigitalNames: make([]string, 16),
				PhasorUnits:  []PhasorUnit{{Voltage: true, ConversionFactor: 100000}}, // 1.0 unit/bit scale
				AnalogUnits:  []AnalogUnit{{Kind: 0, ConversionFactor: 1}},
				DigitalUnits: []DigitalUnit{{NormalMask: 0xFFFF, ValidMask: 0xFFFF}},
				Nominal:      0,
			},
		},
	}
}

func TestDataFrameRoundTripPolarInt(t *testing.T) {
	cfg := sampleConfigFrame()
	df := DataFrame{
		IDCode: 1001,
		SOC:    1700000000,
		Frasec: 500000,
		Streams: []StreamRecord{
			{
				Status:   StreamStatus{PMUSync: true},
				Phasors:  []RawPhasor{{A: 12000, B: 0.5}},
				Freq:     RawFreq{Freq: 10, ROCOF: 2},
				Analogs:  []float64{5},
				Digitals: []uint16{0xFFFF},
			},
		},
	}

	encoded, err := EncodeDataFrame(cfg, df)
	require.NoError(t, err)

	got, err := DecodeDataFrame(encoded, cfg)
	require.NoError(t, err)
	require.Len(t, got.Streams, 1)
	assert.True(t, got.Streams[0].Status.PMUSync)
	assert.InDelta(t, 12000, got.Streams[0].Phasors[0].A, 0.001)
	assert.InDelta(t, 0.5, got.Streams[0].Phasors[0].B, 0.001)

	measurements, err := got.Measurements(cfg)
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	// magnitude = 12000 * 100000 * 1e-5 = 12000
	assert.InDelta(t, 12000, measurements[0].Phasors[0].Magnitude, 0.01)
	assert.InDelta(t, 0.5, measurements[0].Phasors[0].AngleRad, 0.001)
	// FNOM bit 0 clear -> 60 Hz nominal, raw 10 mHz deviation.
	assert.InDelta(t, 60.01, measurements[0].FrequencyHz, 0.0001)
	assert.InDelta(t, 0.02, measurements[0].ROCOFHzPerSec, 0.0001)
	assert.Equal(t, uint32(1700000000), uint32(measurements[0].Timestamp.Unix()))
}

func TestDataFrameRectangularFloatMeasurement(t *testing.T) {
	cfg := sampleConfigFrame()
	cfg.Streams[0].Format = DataFormat{PhasorPolar: false, PhasorFloat: true, FreqFloat: true}

	df := DataFrame{
		IDCode: 1001,
		SOC:    1,
		Frasec: 1,
		Streams: []StreamRecord{
			{
				Phasors:  []RawPhasor{{A: 3, B: 4}}, // 3+4i -> magnitude 5
				Freq:     RawFreq{Freq: 59.98, ROCOF: -0.01},
				Analogs:  []float64{1.5},
				Digitals: []uint16{0},
			},
		},
	}

	encoded, err := EncodeDataFrame(cfg, df)
	require.NoError(t, err)

	got, err := DecodeDataFrame(encoded, cfg)
	require.NoError(t, err)

	measurements, err := got.Measurements(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, measurements[0].Phasors[0].Magnitude, 0.0001)
	assert.InDelta(t, math.Atan2(4, 3), measurements[0].Phasors[0].AngleRad, 0.0001)
	assert.InDelta(t, 59.98, measurements[0].FrequencyHz, 0.0001)
}

func TestDecodeDataFrameRequiresConfiguration(t *testing.T) {
	cfg := sampleConfigFrame()
	df := DataFrame{IDCode: 1, Streams: []StreamRecord{{Phasors: []RawPhasor{{A: 1, B: 0}}, Analogs: []float64{1}, Digitals: []uint16{1}}}}
	encoded, err := EncodeDataFrame(cfg, df)
	require.NoError(t, err)

	_, err = DecodeDataFrame(encoded, nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, NoConfiguration, kind)
}

func TestEncodeDataFrameRejectsStreamCountMismatch(t *testing.T) {
	cfg := sampleConfigFrame()
	_, err := EncodeDataFrame(cfg, DataFrame{})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, StructuralMismatch, kind)
}

// Configuration says more phasors fit in the stream record than the
// encoded payload actually holds. This must report StructuralMismatch,
// not Truncated: the buffer is well-formed for the frame it was
// encoded against, it just doesn't fit the decoder's configuration.
func TestDecodeDataFrameReportsStructuralMismatchWhenConfigOvercounts(t *testing.T) {
	cfg := sampleConfigFrame() // declares 1 phasor, 1 analog, 1 digital word
	df := DataFrame{
		IDCode: 1001,
		SOC:    1,
		Frasec: 1,
		Streams: []StreamRecord{
			{
				Phasors:  []RawPhasor{{A: 1000, B: 0}},
				Freq:     RawFreq{Freq: 0, ROCOF: 0},
				Analogs:  []float64{1},
				Digitals: []uint16{0},
			},
		},
	}
	encoded, err := EncodeDataFrame(cfg, df)
	require.NoError(t, err)

	overcounting := sampleConfigFrame()
	overcounting.Streams[0].PhasorNames = []string{"VA", "VB"}
	overcounting.Streams[0].PhasorUnits = append(overcounting.Streams[0].PhasorUnits, PhasorUnit{Voltage: true, ConversionFactor: 100000})

	_, err = DecodeDataFrame(encoded, overcounting)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, StructuralMismatch, kind)
}

// Concrete scenario: a single-stream CFG-1-shaped configuration with
// PHNMR=2, ANNMR=1, DGNMR=1 and format (polar, int, int, int).
func TestDataFrameScenarioSingleStreamPolarInt(t *testing.T) {
	cfg := &ConfigFrame{
		IDCode:   1,
		TimeBase: 1000000,
		DataRate: 30,
		Streams: []StreamConfig{
			{
				StationName:  "STN1",
				IDCode:       1,
				Format:       DataFormat{PhasorPolar: true, PhasorFloat: false, AnalogFloat: false, FreqFloat: false},
				PhasorNames:  []string{"VA", "VB"},
				AnalogNames:  []string{"AN1"},
				DigitalNames: make([]string, 16),
				PhasorUnits: []PhasorUnit{
					{Voltage: true, ConversionFactor: 100000},
					{Voltage: true, ConversionFactor: 100000},
				},
				AnalogUnits:  []AnalogUnit{{Kind: 0, ConversionFactor: 1}},
				DigitalUnits: []DigitalUnit{{NormalMask: 0xFFFF, ValidMask: 0xFFFF}},
				Nominal:      0,
			},
		},
	}

	df := DataFrame{
		IDCode: 1,
		SOC:    1,
		Frasec: 1,
		Streams: []StreamRecord{
			{
				Phasors:  []RawPhasor{{A: 12345, B: 3.1415}, {A: 30000, B: -3.1415}},
				Freq:     RawFreq{Freq: 2500, ROCOF: 100},
				Analogs:  []float64{-123},
				Digitals: []uint16{0xFFFF},
			},
		},
	}

	encoded, err := EncodeDataFrame(cfg, df)
	require.NoError(t, err)

	got, err := DecodeDataFrame(encoded, cfg)
	require.NoError(t, err)

	measurements, err := got.Measurements(cfg)
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	// nominal 60 Hz + 2500 mHz deviation = 62.5 Hz
	assert.InDelta(t, 62.5, measurements[0].FrequencyHz, 0.0001)
}

// Concrete scenario: the same logical stream under FORMAT=all-float
// produces a strictly larger payload than the all-int encoding.
func TestDataFrameScenarioFloatFormatIsLarger(t *testing.T) {
	intCfg := sampleConfigFrame()
	floatCfg := sampleConfigFrame()
	floatCfg.Streams[0].Format = DataFormat{PhasorPolar: false, PhasorFloat: true, AnalogFloat: true, FreqFloat: true}

	record := StreamRecord{
		Phasors:  []RawPhasor{{A: 12000, B: 0.5}},
		Freq:     RawFreq{Freq: 10, ROCOF: 2},
		Analogs:  []float64{5},
		Digitals: []uint16{0xFFFF},
	}

	intEncoded, err := EncodeDataFrame(intCfg, DataFrame{IDCode: 1001, SOC: 1, Frasec: 1, Streams: []StreamRecord{record}})
	require.NoError(t, err)
	floatEncoded, err := EncodeDataFrame(floatCfg, DataFrame{IDCode: 1001, SOC: 1, Frasec: 1, Streams: []StreamRecord{record}})
	require.NoError(t, err)

	assert.Greater(t, len(floatEncoded), len(intEncoded))
}
