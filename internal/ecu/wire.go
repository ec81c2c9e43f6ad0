package ecu

// XR25 frames start with FF 00. An FF inside the frame is sent on the
// wire as FF FF.
//
//	FF 00 aa bb cc dd ... FF 00 ...
//	|---| |  |  |  |      |---|
//	 hdr  2  3  4  5       next frame
const (
	escByte   = 0xFF
	startByte = 0x00

	// MaxFrameSize bounds an unstuffed frame, header included.
	MaxFrameSize = 128
)

// NewRawFrame returns a frame buffer of length n holding the header,
// ready for payload bytes at their wire offsets.
func NewRawFrame(n int) []byte {
	if n < 2 {
		n = 2
	}
	raw := make([]byte, n)
	raw[0], raw[1] = escByte, startByte
	return raw
}

// AppendFrame appends the wire encoding of raw to dst. raw is an
// unstuffed frame as produced by the Synchronizer; its first two bytes
// are replaced by the FF 00 header.
func AppendFrame(dst, raw []byte) []byte {
	dst = append(dst, escByte, startByte)
	if len(raw) < 2 {
		return dst
	}
	for _, b := range raw[2:] {
		if b == escByte {
			dst = append(dst, escByte)
		}
		dst = append(dst, b)
	}
	return dst
}

// AppendHeader appends a bare FF 00 header. A trailing header completes
// the last frame of a finite stream.
func AppendHeader(dst []byte) []byte {
	return append(dst, escByte, startByte)
}
