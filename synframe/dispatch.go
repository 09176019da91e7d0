package synframe

// Frame is the decoded result of Decode: exactly one of the frame
// type's own decoded struct, boxed behind a type switch.
type Frame interface {
	isFrame()
}

func (HeaderFrame) isFrame()  {}
func (CommandFrame) isFrame() {}
func (ConfigFrame) isFrame()  {}
func (Cfg3Frame) isFrame()    {}
func (DataFrame) isFrame()    {}

// Decode inspects b's type nibble and decodes it as the matching frame.
// Decoding a data frame (type nibble 0) requires cfg; any other type
// ignores cfg. Callers that already know the frame type should prefer
// the type-specific Decode*Frame function instead, since Decode must
// peek the envelope twice (once here, once inside the matched
// decoder).
func Decode(b []byte, cfg *ConfigFrame) (Frame, error) {
	frameType, _, err := PeekType(b)
	if err != nil {
		return nil, err
	}
	switch frameType {
	case FrameTypeData:
		df, err := DecodeDataFrame(b, cfg)
		if err != nil {
			return nil, err
		}
		return df, nil
	case FrameTypeHeader:
		hf, err := DecodeHeaderFrame(b)
		if err != nil {
			return nil, err
		}
		return hf, nil
	case FrameTypeCfg1:
		cf, err := DecodeCfg1Frame(b)
		if err != nil {
			return nil, err
		}
		return cf, nil
	case FrameTypeCfg2:
		cf, err := DecodeCfg2Frame(b)
		if err != nil {
			return nil, err
		}
		return cf, nil
	case FrameTypeCmd:
		cmdf, err := DecodeCommandFrame(b)
		if err != nil {
			return nil, err
		}
		return cmdf, nil
	case FrameTypeCfg3:
		c3, err := DecodeCfg3Frame(b)
		if err != nil {
			return nil, err
		}
		return c3, nil
	default:
		return nil, newErr(UnknownFrameType, "unrecognized frame type nibble")
	}
}
