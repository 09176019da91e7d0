package synframe

import (
	"github.com/rob-gra/synchrophasor-timesync/internal/bitio"
)

const nameFieldSize = 16

// PhasorUnit is a PHUNIT entry: the conversion factor applied to a
// 16-bit integer phasor magnitude, and whether the channel is a
// voltage or current phasor.
type PhasorUnit struct {
	Voltage          bool
	ConversionFactor uint32 // 10^-5 units per bit, 24 bits
}

func packPhasorUnit(u PhasorUnit) uint32 {
	var typeFlag uint32
	if !u.Voltage {
		typeFlag = 1
	}
	return typeFlag<<24 | (u.ConversionFactor & 0x00FFFFFF)
}

func unpackPhasorUnit(v uint32) PhasorUnit {
	return PhasorUnit{
		Voltage:          (v>>24)&0xFF == 0,
		ConversionFactor: v & 0x00FFFFFF,
	}
}

// AnalogUnit is an ANUNIT entry: the signed conversion factor and
// measurement kind (single point-on-wave sample, RMS, or peak) for an
// analog channel.
type AnalogUnit struct {
	Kind             uint8
	ConversionFactor int32
}

func packAnalogUnit(u AnalogUnit) uint32 {
	return uint32(u.Kind)<<24 | (uint32(u.ConversionFactor) & 0x00FFFFFF)
}

func unpackAnalogUnit(v uint32) AnalogUnit {
	cf := int32(v & 0x00FFFFFF)
	if cf&0x00800000 != 0 {
		cf |= ^int32(0x00FFFFFF)
	}
	return AnalogUnit{Kind: uint8(v >> 24), ConversionFactor: cf}
}

// DigitalUnit is a DIGUNIT entry: the normal-status and valid-input
// masks for one 16-bit digital status word.
type DigitalUnit struct {
	NormalMask uint16
	ValidMask  uint16
}

func packDigitalUnit(u DigitalUnit) uint32 {
	return uint32(u.NormalMask)<<16 | uint32(u.ValidMask)
}

func unpackDigitalUnit(v uint32) DigitalUnit {
	return DigitalUnit{NormalMask: uint16(v >> 16), ValidMask: uint16(v)}
}

// StreamConfig describes one PMU's measurement set within a
// configuration frame.
type StreamConfig struct {
	StationName  string
	IDCode       uint16
	Format       DataFormat
	PhasorNames  []string
	AnalogNames  []string
	DigitalNames []string // length must be 16 * len(DigitalUnits)
	PhasorUnits  []PhasorUnit
	AnalogUnits  []AnalogUnit
	DigitalUnits []DigitalUnit
	Nominal      uint16 // FNOM: bit0 0=60Hz, 1=50Hz
	ConfigCount  uint16
}

func (s StreamConfig) validate() error {
	if len(s.PhasorNames) != len(s.PhasorUnits) {
		return newErr(StructuralMismatch, "phasor name count does not match phasor unit count")
	}
	if len(s.AnalogNames) != len(s.AnalogUnits) {
		return newErr(StructuralMismatch, "analog name count does not match analog unit count")
	}
	if len(s.DigitalNames) != 16*len(s.DigitalUnits) {
		return newErr(StructuralMismatch, "digital name count does not match 16 * digital word count")
	}
	if len(s.PhasorNames) > 0xFFFF || len(s.AnalogNames) > 0xFFFF || len(s.DigitalUnits) > 0xFFFF {
		return newErr(FieldRange, "channel count exceeds 16 bits")
	}
	return nil
}

// ConfigFrame is a CFG-1 or CFG-2 configuration frame: the TIME_BASE
// and data rate shared by every stream, plus one StreamConfig per PMU.
type ConfigFrame struct {
	Version  uint8
	IDCode   uint16
	SOC      uint32
	Frasec   uint32
	TimeBase uint32
	DataRate int16
	Streams  []StreamConfig
}

func encodeConfigBody(cf ConfigFrame) ([]byte, error) {
	if len(cf.Streams) == 0 {
		return nil, newErr(FieldRange, "configuration frame must describe at least one stream")
	}
	if len(cf.Streams) > 0xFFFF {
		return nil, newErr(FieldRange, "stream count exceeds 16 bits")
	}
	for i := range cf.Streams {
		if err := cf.Streams[i].validate(); err != nil {
			return nil, err
		}
	}

	w := bitio.NewWriter()
	w.PutU32(cf.TimeBase)
	w.PutU16(uint16(len(cf.Streams)))
	for _, s := range cf.Streams {
		w.PutString(s.StationName, nameFieldSize)
		w.PutU16(s.IDCode)
		w.PutU16(PackDataFormat(s.Format))
		w.PutU16(uint16(len(s.PhasorNames)))
		w.PutU16(uint16(len(s.AnalogNames)))
		w.PutU16(uint16(len(s.DigitalUnits)))
		for _, name := range s.PhasorNames {
			w.PutString(name, nameFieldSize)
		}
		for _, name := range s.AnalogNames {
			w.PutString(name, nameFieldSize)
		}
		for _, name := range s.DigitalNames {
			w.PutString(name, nameFieldSize)
		}
		for _, u := range s.PhasorUnits {
			w.PutU32(packPhasorUnit(u))
		}
		for _, u := range s.AnalogUnits {
			w.PutU32(packAnalogUnit(u))
		}
		for _, u := range s.DigitalUnits {
			w.PutU32(packDigitalUnit(u))
		}
		w.PutU16(s.Nominal)
		w.PutU16(s.ConfigCount)
	}
	w.PutI16(cf.DataRate)
	return w.Bytes(), nil
}

func decodeConfigBody(payload []byte) (ConfigFrame, error) {
	r := bitio.NewReader(payload)

	timeBase, ok := r.GetU32()
	if !ok {
		return ConfigFrame{}, newErr(Truncated, "missing TIME_BASE")
	}
	numPMU, ok := r.GetU16()
	if !ok {
		return ConfigFrame{}, newErr(Truncated, "missing NUM_PMU")
	}

	streams := make([]StreamConfig, 0, numPMU)
	for i := 0; i < int(numPMU); i++ {
		stn, ok := r.GetString(nameFieldSize)
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing station name")
		}
		idCode, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing stream IDCODE")
		}
		formatWord, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing FORMAT")
		}
		phnmr, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing PHNMR")
		}
		annmr, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing ANNMR")
		}
		dgnmr, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing DGNMR")
		}

		phasorNames, err := readNames(r, int(phnmr))
		if err != nil {
			return ConfigFrame{}, err
		}
		analogNames, err := readNames(r, int(annmr))
		if err != nil {
			return ConfigFrame{}, err
		}
		digitalNames, err := readNames(r, 16*int(dgnmr))
		if err != nil {
			return ConfigFrame{}, err
		}

		phasorUnits := make([]PhasorUnit, phnmr)
		for j := range phasorUnits {
			v, ok := r.GetU32()
			if !ok {
				return ConfigFrame{}, newErr(Truncated, "missing PHUNIT entry")
			}
			phasorUnits[j] = unpackPhasorUnit(v)
		}
		analogUnits := make([]AnalogUnit, annmr)
		for j := range analogUnits {
			v, ok := r.GetU32()
			if !ok {
				return ConfigFrame{}, newErr(Truncated, "missing ANUNIT entry")
			}
			analogUnits[j] = unpackAnalogUnit(v)
		}
		digitalUnits := make([]DigitalUnit, dgnmr)
		for j := range digitalUnits {
			v, ok := r.GetU32()
			if !ok {
				return ConfigFrame{}, newErr(Truncated, "missing DIGUNIT entry")
			}
			digitalUnits[j] = unpackDigitalUnit(v)
		}

		nominal, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing FNOM")
		}
		cfgcnt, ok := r.GetU16()
		if !ok {
			return ConfigFrame{}, newErr(Truncated, "missing CFGCNT")
		}

		streams = append(streams, StreamConfig{
			StationName:  stn,
			IDCode:       idCode,
			Format:       UnpackDataFormat(formatWord),
			PhasorNames:  phasorNames,
			AnalogNames:  analogNames,
			DigitalNames: digitalNames,
			PhasorUnits:  phasorUnits,
			AnalogUnits:  analogUnits,
			DigitalUnits: digitalUnits,
			Nominal:      nominal,
			ConfigCount:  cfgcnt,
		})
	}

	dataRate, ok := r.GetI16()
	if !ok {
		return ConfigFrame{}, newErr(Truncated, "missing DATA_RATE")
	}

	return ConfigFrame{TimeBase: timeBase, DataRate: dataRate, Streams: streams}, nil
}

func readNames(r *bitio.Reader, n int) ([]string, error) {
	if n == 0 {
		return nil, nil
	}
	names := make([]string, n)
	for i := range names {
		s, ok := r.GetString(nameFieldSize)
		if !ok {
			return nil, newErr(Truncated, "missing channel name")
		}
		names[i] = s
	}
	return names, nil
}

func encodeCfgFrame(frameType FrameType, cf ConfigFrame) ([]byte, error) {
	version := cf.Version
	if version == 0 {
		version = DefaultVersion
	}
	body, err := encodeConfigBody(cf)
	if err != nil {
		return nil, err
	}
	soc, frasec := cf.SOC, cf.Frasec
	if soc == 0 && frasec == 0 {
		soc, frasec = nowSOCFrasec()
	}
	return encodeFrame(header{
		frameType: frameType,
		version:   version,
		idCode:    cf.IDCode,
		soc:       soc,
		frasec:    frasec,
	}, body)
}

func decodeCfgFrame(b []byte, want FrameType) (ConfigFrame, error) {
	h, payload, err := decodeFrame(b)
	if err != nil {
		return ConfigFrame{}, err
	}
	if h.frameType != want {
		return ConfigFrame{}, newErr(StructuralMismatch, "frame type does not match requested configuration frame")
	}
	cf, err := decodeConfigBody(payload)
	if err != nil {
		return ConfigFrame{}, err
	}
	cf.Version = h.version
	cf.IDCode = h.idCode
	cf.SOC = h.soc
	cf.Frasec = h.frasec
	return cf, nil
}

// EncodeCfg1Frame builds a CFG-1 (capability) configuration frame.
func EncodeCfg1Frame(cf ConfigFrame) ([]byte, error) { return encodeCfgFrame(FrameTypeCfg1, cf) }

// DecodeCfg1Frame decodes a CFG-1 frame.
func DecodeCfg1Frame(b []byte) (ConfigFrame, error) { return decodeCfgFrame(b, FrameTypeCfg1) }

// EncodeCfg2Frame builds a CFG-2 (current) configuration frame.
func EncodeCfg2Frame(cf ConfigFrame) ([]byte, error) { return encodeCfgFrame(FrameTypeCfg2, cf) }

// DecodeCfg2Frame decodes a CFG-2 frame.
func DecodeCfg2Frame(b []byte) (ConfigFrame, error) { return decodeCfgFrame(b, FrameTypeCfg2) }

// Cfg3Frame is a CFG-3 frame. The 2011 revision of the standard makes
// CFG-3 a variable-length superset of CFG-2 with optional per-stream
// extensions (multi-rate sample rates, extended channel descriptions);
// this codec does not interpret that structure and instead round-trips
// the body opaquely, matching how a PDC that only needs CFG-2-level
// configuration treats an unrecognized CFG-3 tail.
type Cfg3Frame struct {
	Version uint8
	IDCode  uint16
	SOC     uint32
	Frasec  uint32
	Payload []byte
}

// EncodeCfg3Frame builds a CFG-3 frame from an opaque payload.
func EncodeCfg3Frame(f Cfg3Frame) ([]byte, error) {
	version := f.Version
	if version == 0 {
		version = DefaultVersion
	}
	soc, frasec := f.SOC, f.Frasec
	if soc == 0 && frasec == 0 {
		soc, frasec = nowSOCFrasec()
	}
	return encodeFrame(header{
		frameType: FrameTypeCfg3,
		version:   version,
		idCode:    f.IDCode,
		soc:       soc,
		frasec:    frasec,
	}, f.Payload)
}

// DecodeCfg3Frame decodes a CFG-3 frame, leaving its body untouched.
func DecodeCfg3Frame(b []byte) (Cfg3Frame, error) {
	h, payload, err := decodeFrame(b)
	if err != nil {
		return Cfg3Frame{}, err
	}
	if h.frameType != FrameTypeCfg3 {
		return Cfg3Frame{}, newErr(StructuralMismatch, "frame is not a CFG-3 frame")
	}
	return Cfg3Frame{
		Version: h.version,
		IDCode:  h.idCode,
		SOC:     h.soc,
		Frasec:  h.frasec,
		Payload: append([]byte(nil), payload...),
	}, nil
}
