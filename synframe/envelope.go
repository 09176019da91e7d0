// Package synframe implements the IEEE C37.118.2 synchrophasor frame
// codec: envelope framing, FRASEC, the per-stream configuration and
// data frames, and header/command frames. It is laid out as a single
// flat package, the way the teacher keeps its whole ASDU codec in one
// package to avoid a decode/encode import cycle between the envelope
// and the frame bodies that need it.
package synframe

import (
	"time"

	"github.com/rob-gra/synchrophasor-timesync/internal/bitio"
)

// FrameType is the 4-bit frame-type nibble carried in the sync word.
type FrameType uint8

const (
	FrameTypeData   FrameType = 0
	FrameTypeHeader FrameType = 1
	FrameTypeCfg1   FrameType = 2
	FrameTypeCfg2   FrameType = 3
	FrameTypeCmd    FrameType = 4
	FrameTypeCfg3   FrameType = 5
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "Data"
	case FrameTypeHeader:
		return "Header"
	case FrameTypeCfg1:
		return "Cfg1"
	case FrameTypeCfg2:
		return "Cfg2"
	case FrameTypeCmd:
		return "Cmd"
	case FrameTypeCfg3:
		return "Cfg3"
	default:
		return "Unknown"
	}
}

func (t FrameType) valid() bool {
	return t <= FrameTypeCfg3
}

const (
	syncHighByte = 0xAA

	// fixed fields before the payload: SYNC(2) FRAMESIZE(2) IDCODE(2)
	// SOC(4) FRASEC(4).
	fixedHeaderSize = 14
	crcSize         = 2
	minFrameSize    = fixedHeaderSize + crcSize

	defaultMicrosecondTimeBase = 1_000_000
)

// header holds the fields common to every frame, decoded from the
// fixed 14-byte envelope.
type header struct {
	frameType FrameType
	version   uint8
	idCode    uint16
	soc       uint32
	frasec    uint32
}

// encodeFrame assembles a complete frame: 14-byte fixed header,
// payload, and a trailing CRC16/XMODEM computed over everything
// preceding it.
func encodeFrame(h header, payload []byte) ([]byte, error) {
	if !h.frameType.valid() {
		return nil, newErr(FieldRange, "frame type out of range")
	}
	if h.version < 1 || h.version > 15 {
		return nil, newErr(FieldRange, "version out of range 1-15")
	}
	frameSize := fixedHeaderSize + len(payload) + crcSize
	if frameSize > 0xFFFF {
		return nil, newErr(FieldRange, "frame too large to fit FRAMESIZE field")
	}

	w := bitio.NewWriter()
	sync := uint16(syncHighByte)<<8 | uint16(h.frameType)<<4 | uint16(h.version)
	w.PutU16(sync)
	w.PutU16(uint16(frameSize))
	w.PutU16(h.idCode)
	w.PutU32(h.soc)
	w.PutU32(h.frasec)
	w.PutBytes(payload...)

	crc := bitio.CRC16XModem(w.Bytes(), 0xFFFF)
	w.PutU16(crc)
	return w.Bytes(), nil
}

// decodeFrame validates the CRC and fixed header of b and returns the
// decoded header plus the payload slice (aliasing b). b may be longer
// than the frame; only the declared FRAMESIZE bytes are consumed.
func decodeFrame(b []byte) (header, []byte, error) {
	if len(b) < minFrameSize {
		return header{}, nil, newErr(Truncated, "buffer shorter than minimum frame size")
	}
	if b[0] != syncHighByte {
		return header{}, nil, newErr(UnknownFrameType, "sync high byte is not 0xAA")
	}
	ft := FrameType((b[1] >> 4) & 0x0F)
	version := b[1] & 0x0F
	if !ft.valid() {
		return header{}, nil, newErr(UnknownFrameType, "frame type nibble out of range")
	}

	r := bitio.NewReader(b)
	r.GetBytes(2) // sync, already parsed above

	frameSize, _ := r.GetU16()
	if int(frameSize) < minFrameSize {
		return header{}, nil, newErr(StructuralMismatch, "declared FRAMESIZE smaller than minimum")
	}
	if len(b) < int(frameSize) {
		return header{}, nil, newErr(Truncated, "buffer shorter than declared FRAMESIZE")
	}

	framed := b[:frameSize]
	gotCRC := uint16(framed[frameSize-2])<<8 | uint16(framed[frameSize-1])
	wantCRC := bitio.CRC16XModem(framed[:frameSize-2], 0xFFFF)
	if gotCRC != wantCRC {
		return header{}, nil, newErr(CrcMismatch, "trailing CRC does not match computed CRC16/XMODEM")
	}

	idCode, _ := r.GetU16()
	soc, _ := r.GetU32()
	frasec, _ := r.GetU32()
	payload := framed[fixedHeaderSize : frameSize-crcSize]

	return header{
		frameType: ft,
		version:   version,
		idCode:    idCode,
		soc:       soc,
		frasec:    frasec,
	}, payload, nil
}

// PeekType reports the frame type and protocol version of b without
// decoding the payload, after validating the trailing CRC.
func PeekType(b []byte) (FrameType, uint8, error) {
	h, _, err := decodeFrame(b)
	if err != nil {
		return 0, 0, err
	}
	return h.frameType, h.version, nil
}

// nowSOCFrasec fills SOC/FRASEC from the wall clock when a frame
// builder's caller leaves them at zero, matching the convention used
// by the header- and command-frame constructors. The fraction assumes
// a microsecond TIME_BASE, the value every frame in this codec that
// doesn't carry a configuration frame's own TIME_BASE defaults to.
func nowSOCFrasec() (uint32, uint32) {
	now := time.Now()
	soc := uint32(now.Unix())
	fraction := uint32(now.Nanosecond() / 1000)
	frasec, _ := PackFrasec(fraction, FrasecFlags{TimeQuality: 0})
	return soc, frasec
}
