package synframe

import (
	"math"
	"time"

	"github.com/rob-gra/synchrophasor-timesync/internal/bitio"
)

// StreamStatus is the per-stream STAT word: PMU health and
// synchronization flags reported alongside every measurement.
type StreamStatus struct {
	// DataError is the 2-bit code: 0 good, 1 error, 2 unreasonable
	// data, 3 unknown/questionable.
	DataError    uint8
	PMUSync      bool // true = time-synchronized
	DataSorting  bool // true = sorted by arrival rather than timestamp
	PMUTrigger   bool
	ConfigChange bool
	DataModified bool
}

// ParseStreamStatus decodes bits 15..9 of a STAT word into its flags.
// Bits 8..0 (time-quality, unlocked-time and trigger-reason fields) are
// not decoded.
func ParseStreamStatus(v uint16) StreamStatus {
	return StreamStatus{
		DataError:    uint8(v >> 14),
		PMUSync:      v&(1<<13) == 0,
		DataSorting:  v&(1<<12) != 0,
		PMUTrigger:   v&(1<<11) != 0,
		ConfigChange: v&(1<<10) != 0,
		DataModified: v&(1<<9) != 0,
	}
}

// Value packs the flags back into a STAT word; bits 8..0 are written
// as zero.
func (s StreamStatus) Value() uint16 {
	var v uint16
	v |= uint16(s.DataError&0x3) << 14
	if !s.PMUSync {
		v |= 1 << 13
	}
	if s.DataSorting {
		v |= 1 << 12
	}
	if s.PMUTrigger {
		v |= 1 << 11
	}
	if s.ConfigChange {
		v |= 1 << 10
	}
	if s.DataModified {
		v |= 1 << 9
	}
	return v
}

// RawPhasor holds a phasor's two wire-level components exactly as
// decoded, before the configuration's unit scaling is applied: for a
// polar stream A is the magnitude (raw integer counts, or already
// physical units for a float stream) and B is the angle in radians
// (the int representation's fixed 10^-4 rad/count scaling is already
// applied, since that scaling is not PHUNIT-dependent); for a
// rectangular stream A/B are the real/imaginary components.
type RawPhasor struct {
	A float64
	B float64
}

// RawFreq holds FREQ/DFREQ exactly as decoded: for an int stream Freq
// is the raw millihertz deviation from nominal and ROCOF the raw
// 0.01 Hz/s count; for a float stream both are already absolute
// physical values.
type RawFreq struct {
	Freq  float64
	ROCOF float64
}

// StreamRecord is one PMU's measurement block within a data frame, in
// wire representation, re-encodable against the same configuration it
// was decoded with. Re-encoding reproduces every field except STAT bits
// 8..0, which StreamStatus does not hold and Value writes as zero.
type StreamRecord struct {
	Status   StreamStatus
	Phasors  []RawPhasor
	Freq     RawFreq
	Analogs  []float64
	Digitals []uint16
}

// DataFrame is a decoded or to-be-encoded data frame. Encoding and
// decoding both require the ConfigFrame that describes the streams,
// since the data frame itself carries no channel counts or format
// flags.
type DataFrame struct {
	Version uint8
	IDCode  uint16
	SOC     uint32
	Frasec  uint32
	Streams []StreamRecord
}

// EncodeDataFrame builds a data frame against cfg. len(df.Streams)
// must equal len(cfg.Streams), and each stream's phasor/analog/digital
// counts must match the corresponding StreamConfig.
func EncodeDataFrame(cfg *ConfigFrame, df DataFrame) ([]byte, error) {
	if cfg == nil {
		return nil, newErr(NoConfiguration, "encoding a data frame requires a configuration")
	}
	if len(df.Streams) != len(cfg.Streams) {
		return nil, newErr(StructuralMismatch, "stream count does not match configuration")
	}

	version := df.Version
	if version == 0 {
		version = DefaultVersion
	}

	w := bitio.NewWriter()
	for i, rec := range df.Streams {
		sc := cfg.Streams[i]
		if len(rec.Phasors) != len(sc.PhasorNames) {
			return nil, newErr(StructuralMismatch, "phasor count does not match configuration")
		}
		if len(rec.Analogs) != len(sc.AnalogNames) {
			return nil, newErr(StructuralMismatch, "analog count does not match configuration")
		}
		if len(rec.Digitals) != len(sc.DigitalUnits) {
			return nil, newErr(StructuralMismatch, "digital word count does not match configuration")
		}

		w.PutU16(rec.Status.Value())
		for _, ph := range rec.Phasors {
			if err := putPhasor(w, ph, sc.Format); err != nil {
				return nil, err
			}
		}
		putFreq(w, rec.Freq, sc.Format)
		for _, a := range rec.Analogs {
			if sc.Format.AnalogFloat {
				w.PutF32(float32(a))
			} else {
				w.PutI16(int16(a))
			}
		}
		for _, d := range rec.Digitals {
			w.PutU16(d)
		}
	}

	soc, frasec := df.SOC, df.Frasec
	if soc == 0 && frasec == 0 {
		soc, frasec = nowSOCFrasec()
	}
	return encodeFrame(header{
		frameType: FrameTypeData,
		version:   version,
		idCode:    df.IDCode,
		soc:       soc,
		frasec:    frasec,
	}, w.Bytes())
}

func putPhasor(w *bitio.Writer, ph RawPhasor, format DataFormat) error {
	if format.PhasorFloat {
		w.PutF32(float32(ph.A))
		w.PutF32(float32(ph.B))
		return nil
	}
	if format.PhasorPolar {
		if ph.A < 0 || ph.A > 0xFFFF {
			return newErr(FieldRange, "integer phasor magnitude out of 16-bit range")
		}
		w.PutU16(uint16(ph.A))
		w.PutI16(int16(math.Round(ph.B * 10000)))
		return nil
	}
	w.PutI16(int16(ph.A))
	w.PutI16(int16(ph.B))
	return nil
}

func putFreq(w *bitio.Writer, f RawFreq, format DataFormat) {
	if format.FreqFloat {
		w.PutF32(float32(f.Freq))
		w.PutF32(float32(f.ROCOF))
		return
	}
	w.PutI16(int16(f.Freq))
	w.PutI16(int16(f.ROCOF))
}

// DecodeDataFrame decodes a data frame against cfg. A nil cfg returns
// NoConfiguration: a data frame's wire layout is meaningless without
// the channel counts and format flags its configuration frame defines.
func DecodeDataFrame(b []byte, cfg *ConfigFrame) (DataFrame, error) {
	if cfg == nil {
		return DataFrame{}, newErr(NoConfiguration, "decoding a data frame requires a configuration")
	}
	h, payload, err := decodeFrame(b)
	if err != nil {
		return DataFrame{}, err
	}
	if h.frameType != FrameTypeData {
		return DataFrame{}, newErr(StructuralMismatch, "frame is not a data frame")
	}

	required := 0
	for _, sc := range cfg.Streams {
		required += streamByteSize(sc)
	}
	if len(payload) < required {
		return DataFrame{}, newErr(StructuralMismatch, "configuration declares more fields than fit in the remaining payload")
	}

	r := bitio.NewReader(payload)
	streams := make([]StreamRecord, 0, len(cfg.Streams))
	for _, sc := range cfg.Streams {
		statWord, ok := r.GetU16()
		if !ok {
			return DataFrame{}, newErr(Truncated, "missing STAT word")
		}
		phasors := make([]RawPhasor, len(sc.PhasorNames))
		for i := range phasors {
			ph, err := getPhasor(r, sc.Format)
			if err != nil {
				return DataFrame{}, err
			}
			phasors[i] = ph
		}
		freq, err := getFreq(r, sc.Format)
		if err != nil {
			return DataFrame{}, err
		}
		analogs := make([]float64, len(sc.AnalogNames))
		for i := range analogs {
			if sc.Format.AnalogFloat {
				v, ok := r.GetF32()
				if !ok {
					return DataFrame{}, newErr(StructuralMismatch, "missing analog value")
				}
				analogs[i] = float64(v)
			} else {
				v, ok := r.GetI16()
				if !ok {
					return DataFrame{}, newErr(StructuralMismatch, "missing analog value")
				}
				analogs[i] = float64(v)
			}
		}
		digitals := make([]uint16, len(sc.DigitalUnits))
		for i := range digitals {
			v, ok := r.GetU16()
			if !ok {
				return DataFrame{}, newErr(StructuralMismatch, "missing digital word")
			}
			digitals[i] = v
		}

		streams = append(streams, StreamRecord{
			Status:   ParseStreamStatus(statWord),
			Phasors:  phasors,
			Freq:     freq,
			Analogs:  analogs,
			Digitals: digitals,
		})
	}

	return DataFrame{
		Version: h.version,
		IDCode:  h.idCode,
		SOC:     h.soc,
		Frasec:  h.frasec,
		Streams: streams,
	}, nil
}

// streamByteSize returns the wire byte width one stream's record
// occupies under sc's declared counts and format flags: STAT word +
// phasors + FREQ/DFREQ + analogs + digitals.
func streamByteSize(sc StreamConfig) int {
	phasorWidth := 4
	if sc.Format.PhasorFloat {
		phasorWidth = 8
	}
	freqWidth := 4
	if sc.Format.FreqFloat {
		freqWidth = 8
	}
	analogWidth := 2
	if sc.Format.AnalogFloat {
		analogWidth = 4
	}
	return 2 + phasorWidth*len(sc.PhasorNames) + freqWidth +
		analogWidth*len(sc.AnalogNames) + 2*len(sc.DigitalUnits)
}

func getPhasor(r *bitio.Reader, format DataFormat) (RawPhasor, error) {
	if format.PhasorFloat {
		a, ok := r.GetF32()
		if !ok {
			return RawPhasor{}, newErr(StructuralMismatch, "missing phasor component")
		}
		b, ok := r.GetF32()
		if !ok {
			return RawPhasor{}, newErr(StructuralMismatch, "missing phasor component")
		}
		return RawPhasor{A: float64(a), B: float64(b)}, nil
	}
	if format.PhasorPolar {
		mag, ok := r.GetU16()
		if !ok {
			return RawPhasor{}, newErr(StructuralMismatch, "missing phasor magnitude")
		}
		ang, ok := r.GetI16()
		if !ok {
			return RawPhasor{}, newErr(StructuralMismatch, "missing phasor angle")
		}
		return RawPhasor{A: float64(mag), B: float64(ang) / 10000.0}, nil
	}
	re, ok := r.GetI16()
	if !ok {
		return RawPhasor{}, newErr(StructuralMismatch, "missing phasor real component")
	}
	im, ok := r.GetI16()
	if !ok {
		return RawPhasor{}, newErr(StructuralMismatch, "missing phasor imaginary component")
	}
	return RawPhasor{A: float64(re), B: float64(im)}, nil
}

func getFreq(r *bitio.Reader, format DataFormat) (RawFreq, error) {
	if format.FreqFloat {
		f, ok := r.GetF32()
		if !ok {
			return RawFreq{}, newErr(StructuralMismatch, "missing FREQ")
		}
		d, ok := r.GetF32()
		if !ok {
			return RawFreq{}, newErr(StructuralMismatch, "missing DFREQ")
		}
		return RawFreq{Freq: float64(f), ROCOF: float64(d)}, nil
	}
	f, ok := r.GetI16()
	if !ok {
		return RawFreq{}, newErr(StructuralMismatch, "missing FREQ")
	}
	d, ok := r.GetI16()
	if !ok {
		return RawFreq{}, newErr(StructuralMismatch, "missing DFREQ")
	}
	return RawFreq{Freq: float64(f), ROCOF: float64(d)}, nil
}

// PhasorMeasurement is a phasor converted to its engineering
// representation: magnitude in volts or amps, angle in radians.
type PhasorMeasurement struct {
	Magnitude float64
	AngleRad  float64
}

// StreamMeasurement is one stream's data frame record converted to
// engineering units using its configuration.
type StreamMeasurement struct {
	Status        StreamStatus
	Phasors       []PhasorMeasurement
	FrequencyHz   float64
	ROCOFHzPerSec float64
	Analogs       []float64
	Digitals      []uint16
	Timestamp     time.Time
}

// Measurements converts df into engineering units against cfg,
// applying the PHUNIT scale factors, the FNOM-relative frequency
// convention, and the SOC/FRASEC timestamp. Analog values are returned
// as decoded; ANUNIT scaling is not applied.
func (df DataFrame) Measurements(cfg *ConfigFrame) ([]StreamMeasurement, error) {
	if cfg == nil {
		return nil, newErr(NoConfiguration, "converting measurements requires a configuration")
	}
	if len(df.Streams) != len(cfg.Streams) {
		return nil, newErr(StructuralMismatch, "stream count does not match configuration")
	}

	fraction, _ := UnpackFrasec(df.Frasec)
	timeBase := cfg.TimeBase
	if timeBase == 0 {
		timeBase = defaultMicrosecondTimeBase
	}
	offset := time.Duration(float64(fraction) / float64(timeBase) * float64(time.Second))
	timestamp := time.Unix(int64(df.SOC), 0).Add(offset)

	out := make([]StreamMeasurement, len(df.Streams))
	for i, rec := range df.Streams {
		sc := cfg.Streams[i]
		nominalHz := 60.0
		if sc.Nominal&1 == 1 {
			nominalHz = 50.0
		}

		phasors := make([]PhasorMeasurement, len(rec.Phasors))
		for j, raw := range rec.Phasors {
			var unit PhasorUnit
			if j < len(sc.PhasorUnits) {
				unit = sc.PhasorUnits[j]
			}
			phasors[j] = phasorMeasurement(raw, sc.Format, unit)
		}

		freqHz, rocof := frequencyMeasurement(rec.Freq, sc.Format, nominalHz)

		out[i] = StreamMeasurement{
			Status:        rec.Status,
			Phasors:       phasors,
			FrequencyHz:   freqHz,
			ROCOFHzPerSec: rocof,
			Analogs:       append([]float64(nil), rec.Analogs...),
			Digitals:      append([]uint16(nil), rec.Digitals...),
			Timestamp:     timestamp,
		}
	}
	return out, nil
}

func phasorMeasurement(raw RawPhasor, format DataFormat, unit PhasorUnit) PhasorMeasurement {
	if format.PhasorFloat {
		if format.PhasorPolar {
			return PhasorMeasurement{Magnitude: raw.A, AngleRad: raw.B}
		}
		return PhasorMeasurement{Magnitude: math.Hypot(raw.A, raw.B), AngleRad: math.Atan2(raw.B, raw.A)}
	}

	scale := float64(unit.ConversionFactor) * 1e-5
	if format.PhasorPolar {
		return PhasorMeasurement{Magnitude: raw.A * scale, AngleRad: raw.B}
	}
	re := raw.A * scale
	im := raw.B * scale
	return PhasorMeasurement{Magnitude: math.Hypot(re, im), AngleRad: math.Atan2(im, re)}
}

func frequencyMeasurement(raw RawFreq, format DataFormat, nominalHz float64) (freqHz, rocof float64) {
	if format.FreqFloat {
		return raw.Freq, raw.ROCOF
	}
	return nominalHz + raw.Freq/1000.0, raw.ROCOF / 100.0
}
