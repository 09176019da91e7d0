package synframe

import "fmt"

// Kind enumerates the decode/encode error taxonomy.
type Kind int

const (
	_ Kind = iota
	// CrcMismatch: received frame fails its trailing CRC check.
	CrcMismatch
	// Truncated: buffer smaller than required by declared sizes.
	Truncated
	// StructuralMismatch: counts declared in configuration don't fit the
	// remaining payload bytes.
	StructuralMismatch
	// UnknownFrameType: type nibble not in {0,1,2,3,4,5}.
	UnknownFrameType
	// FieldRange: field value outside the standard's bounds on encode.
	FieldRange
	// NoConfiguration: a data frame was decoded without a matching
	// configuration supplied by the caller.
	NoConfiguration
)

func (k Kind) String() string {
	switch k {
	case CrcMismatch:
		return "CrcMismatch"
	case Truncated:
		return "Truncated"
	case StructuralMismatch:
		return "StructuralMismatch"
	case UnknownFrameType:
		return "UnknownFrameType"
	case FieldRange:
		return "FieldRange"
	case NoConfiguration:
		return "NoConfiguration"
	default:
		return "Unknown"
	}
}

// Error is the error type every synframe operation returns. It carries
// a Kind so callers can switch on the taxonomy instead of matching
// strings.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("synframe: %s: %s", e.Kind, e.Msg)
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the Kind carried by err when err is a *Error, so
// callers can switch on the taxonomy. It does not unwrap wrapped
// errors; ok is false for any error that is not itself a *Error.
func KindOf(err error) (Kind, bool) {
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	return 0, false
}
