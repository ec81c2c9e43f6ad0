package capture

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

// maxReplayGap caps the pause between two paced frames.
const maxReplayGap = time.Second

// ReplayConfig selects a recording and how to play it.
type ReplayConfig struct {
	Path string
	// Realtime paces frames by their recorded timestamps.
	Realtime bool
}

// Replay implements ecu.Provider over a gob recording. The frames are
// re-encoded to the XR25 wire format, followed by one trailing header so
// the last frame completes. A damaged record ends the recording like EOF.
type Replay struct {
	cfg ReplayConfig

	mu   sync.Mutex
	f    *os.File
	done chan struct{}
}

// NewReplay creates a Replay; the file is opened by Connect.
func NewReplay(cfg ReplayConfig) *Replay {
	return &Replay{cfg: cfg}
}

func (r *Replay) Name() string { return "Replay" }

func (r *Replay) Connect() error {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return fmt.Errorf("capture: open %s: %w", r.cfg.Path, err)
	}
	r.mu.Lock()
	r.f = f
	r.done = make(chan struct{})
	r.mu.Unlock()
	log.Printf("[capture] replaying %s (realtime=%v)", r.cfg.Path, r.cfg.Realtime)
	return nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	close(r.done)
	err := r.f.Close()
	r.f = nil
	return err
}

func (r *Replay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f != nil
}

func (r *Replay) Reader() io.Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return eofReader{}
	}
	return &replayStream{
		dec:      gob.NewDecoder(r.f),
		done:     r.done,
		realtime: r.cfg.Realtime,
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

type replayStream struct {
	dec      *gob.Decoder
	done     <-chan struct{}
	realtime bool

	buf  []byte
	last time.Time
	eof  bool
}

func (s *replayStream) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		var msg Message
		err := s.dec.Decode(&msg)
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
			s.buf = ecu.AppendHeader(s.buf[:0])
		case err != nil:
			// A truncated or corrupt recording ends where it breaks.
			log.Printf("[capture] replay stopped at damaged record: %v", err)
			s.eof = true
			s.buf = ecu.AppendHeader(s.buf[:0])
		default:
			if err := s.pace(msg.Timestamp); err != nil {
				return 0, err
			}
			s.buf = ecu.AppendFrame(s.buf[:0], msg.Data)
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *replayStream) pace(at time.Time) error {
	defer func() { s.last = at }()
	if !s.realtime || s.last.IsZero() {
		return nil
	}
	gap := at.Sub(s.last)
	if gap <= 0 {
		return nil
	}
	if gap > maxReplayGap {
		gap = maxReplayGap
	}
	t := time.NewTimer(gap)
	defer t.Stop()
	select {
	case <-s.done:
		return io.EOF
	case <-t.C:
		return nil
	}
}
