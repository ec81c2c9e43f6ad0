package ecu

import (
	"encoding/binary"
	"math"
)

// Decoder maps one unstuffed XR25 frame to a Frame for a given ECU
// dialect. raw starts with the FF 00 header, so payload offsets match
// the byte positions documented for each dialect.
//
// Decode must not index out of bounds: frames shorter than the dialect's
// minimum are possible. Fields whose bytes are missing stay unknown and
// accepted is false. accepted is a length sanity hint only.
type Decoder interface {
	Name() string
	Decode(raw []byte) (f Frame, accepted bool)
}

const (
	// rpmConstant converts the crank period reported by Fenix ECUs to rev/min.
	rpmConstant = 0x00e4e1c0

	throttleScale = 2.55
)

// frameReader performs bounds-checked reads and records which fields
// were actually present.
type frameReader struct {
	raw []byte
	f   *Frame
}

func (r *frameReader) u8(fld Field, off int) (uint8, bool) {
	if off < 0 || off >= len(r.raw) {
		return 0, false
	}
	r.f.Known |= fld
	return r.raw[off], true
}

// u16le reads a little-endian pair starting at lo.
func (r *frameReader) u16le(fld Field, lo int) (uint16, bool) {
	if lo < 0 || lo+1 >= len(r.raw) {
		return 0, false
	}
	r.f.Known |= fld
	return binary.LittleEndian.Uint16(r.raw[lo : lo+2]), true
}

// remapBit returns dst when src is set in in, zero otherwise.
func remapBit(in, src, dst uint8) uint8 {
	if in&src != 0 {
		return dst
	}
	return 0
}

func rawToCelsius(b uint8) float64 { return float64(b)/1.6 - 40 }

func celsiusToRaw(c float64) uint8 { return clampByte((c + 40) * 1.6) }

func rawToVolts(b uint8) float64 { return float64(b)/32 + 8 }

func voltsToRaw(v float64) uint8 { return clampByte((v - 8) * 32) }

func rawToPercent(b uint8) int { return int(float64(b) / throttleScale) }

func percentToRaw(p float64) uint8 { return clampByte(math.Ceil(p * throttleScale)) }

// periodToRPM converts the crank period. A zero period maps to 0 rpm.
func periodToRPM(period uint16) int {
	if period == 0 {
		return 0
	}
	return rpmConstant / int(period)
}

func rpmToPeriod(rpm int) uint16 {
	if rpm <= 0 {
		return 0
	}
	p := rpmConstant / rpm
	if p > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(p)
}

func rawToAtmos(b uint8) int { return 4 * int(^b) }

func clampByte(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
