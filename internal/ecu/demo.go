package ecu

import (
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Demo generates a simulated Fenix3 byte stream for development and
// testing. Frames are stuffed exactly as the ECU sends them.
type Demo struct {
	mu     sync.Mutex
	closed chan struct{}
	period time.Duration
	t      float64 // virtual time accumulator
}

const demoFrameRate = 20

// NewDemo creates a simulated ECU streaming Fenix3 frames at 20 fps.
func NewDemo() *Demo {
	return &Demo{period: time.Second / demoFrameRate}
}

func (d *Demo) Name() string { return "Demo (Simulated)" }

func (d *Demo) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = make(chan struct{})
	return nil
}

// Close ends the stream; pending and future reads return io.EOF.
func (d *Demo) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed != nil {
		select {
		case <-d.closed:
		default:
			close(d.closed)
		}
	}
	return nil
}

func (d *Demo) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed == nil {
		return false
	}
	select {
	case <-d.closed:
		return false
	default:
		return true
	}
}

func (d *Demo) Reader() io.Reader {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &demoStream{d: d, closed: d.closed}
}

type demoStream struct {
	d      *Demo
	closed chan struct{}
	buf    []byte
	next   time.Time
}

func (s *demoStream) Read(p []byte) (int, error) {
	if s.closed == nil {
		return 0, io.EOF
	}
	if len(s.buf) == 0 {
		wait := time.Until(s.next)
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-s.closed:
				t.Stop()
				return 0, io.EOF
			case <-t.C:
			}
		}
		select {
		case <-s.closed:
			return 0, io.EOF
		default:
		}
		s.next = time.Now().Add(s.d.period)
		s.buf = AppendFrame(s.buf[:0], s.d.frame())
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// frame returns the next unstuffed Fenix3 frame.
func (d *Demo) frame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.t += 1.0 / demoFrameRate

	// RPM cycles between idle and revving.
	rpm := 850.0 + 4000.0*math.Sin(d.t*0.3)*math.Sin(d.t*0.3) + rand.Float64()*50
	load := (rpm - 850) / (6000 - 850)
	if load < 0 {
		load = 0
	}
	if load > 1 {
		load = 1
	}
	throttle := load * 100

	raw := NewRawFrame(fenix3MinLength)
	raw[2] = 0x21 // program version
	raw[3] = 0x07 // calibration

	in := uint8(0)
	if throttle < 2 {
		in |= uint8(InThrottle0)
	}
	if throttle > 95 {
		in |= uint8(InThrottle1)
	}
	raw[4] = in

	out := uint8(OutPumpEnable)
	if throttle < 2 {
		out |= uint8(OutIdleRegulation)
	}
	if d.t > 30 {
		// Closed loop once the engine is warm.
		out |= uint8(OutLambdaLoop)
	}
	raw[5] = out

	raw[6] = clampByte((300 + load*700) / 4)
	binary.LittleEndian.PutUint16(raw[7:9], rpmToPeriod(int(rpm)))
	raw[9] = percentToRaw(throttle)
	binary.LittleEndian.PutUint16(raw[12:14], uint16((2000+load*9000)/2))
	raw[14] = clampByte(10 + load*28)

	water := 20 + 70*(1-math.Exp(-d.t/60)) + rand.Float64()*2
	raw[21] = celsiusToRaw(water)
	raw[22] = celsiusToRaw(25 + rand.Float64()*8)
	raw[23] = voltsToRaw(13.8 + rand.Float64()*0.4)
	raw[24] = clampByte((450 + 400*math.Sin(d.t*4)) / 6)
	raw[25] = percentToRaw(30 * (1 - load))
	raw[26] = clampByte(40 + rand.Float64()*4)
	raw[28] = ^uint8(1013 / 4)
	raw[30] = 0x80
	raw[34] = clampByte(load * 180)
	return raw
}
