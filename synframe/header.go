package synframe

// DefaultVersion is the protocol version nibble this codec emits when
// a caller doesn't ask for a specific revision.
const DefaultVersion uint8 = 1

// HeaderFrame carries a free-form, human-readable payload (station
// name, firmware banner, and similar descriptive text) and otherwise
// relies entirely on the envelope.
type HeaderFrame struct {
	Version uint8
	IDCode  uint16
	SOC     uint32
	Frasec  uint32
	Data    string
}

// EncodeHeaderFrame builds a header frame. A zero SOC/Frasec pair is
// filled from the wall clock at the instant of encoding.
func EncodeHeaderFrame(hf HeaderFrame) ([]byte, error) {
	version := hf.Version
	if version == 0 {
		version = DefaultVersion
	}
	soc, frasec := hf.SOC, hf.Frasec
	if soc == 0 && frasec == 0 {
		soc, frasec = nowSOCFrasec()
	}
	return encodeFrame(header{
		frameType: FrameTypeHeader,
		version:   version,
		idCode:    hf.IDCode,
		soc:       soc,
		frasec:    frasec,
	}, []byte(hf.Data))
}

// DecodeHeaderFrame decodes a header frame. b may contain trailing
// bytes beyond this frame; only the declared FRAMESIZE is consumed.
func DecodeHeaderFrame(b []byte) (HeaderFrame, error) {
	h, payload, err := decodeFrame(b)
	if err != nil {
		return HeaderFrame{}, err
	}
	if h.frameType != FrameTypeHeader {
		return HeaderFrame{}, newErr(StructuralMismatch, "frame is not a header frame")
	}
	return HeaderFrame{
		Version: h.version,
		IDCode:  h.idCode,
		SOC:     h.soc,
		Frasec:  h.frasec,
		Data:    string(payload),
	}, nil
}
