// Package capture records raw XR25 frames to gob files and replays them
// as a byte stream.
package capture

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

// Message is one recorded frame. Data is the unstuffed frame including
// its FF 00 header.
type Message struct {
	Session   string
	Data      []byte
	Timestamp time.Time
}

// Config holds capture settings.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Recorder appends frames to a gob stream.
type Recorder struct {
	mu      sync.Mutex
	enc     *gob.Encoder
	dest    io.Writer
	session string
	path    string
	frames  int
	failed  bool
}

// NewRecorder records to w under a fresh session id.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		enc:     gob.NewEncoder(w),
		dest:    w,
		session: uuid.New().String(),
	}
}

// Create opens a new capture file in dir.
func Create(dir string, now time.Time) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("capture: mkdir %s: %w", dir, err)
	}
	id := uuid.New()
	name := fmt.Sprintf("xr25_%s_%s.gob", now.Format("2006-01-02_150405"), id.String()[:8])
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create %s: %w", path, err)
	}
	r := NewRecorder(f)
	r.session = id.String()
	r.path = path
	log.Printf("[capture] recording to %s", path)
	return r, nil
}

// Session is the uuid tagging every message of this recording.
func (r *Recorder) Session() string { return r.session }

// Path is the capture file, empty for recorders built with NewRecorder.
func (r *Recorder) Path() string { return r.path }

// Frames returns the number of frames written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Record writes one frame. raw is copied by the encoder.
func (r *Recorder) Record(raw []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(Message{Session: r.session, Data: raw, Timestamp: at}); err != nil {
		return fmt.Errorf("capture: encode: %w", err)
	}
	r.frames++
	return nil
}

// Hook returns a FrameHook that tees every frame into the recording. The
// first write error is logged and later frames are dropped.
func (r *Recorder) Hook() ecu.FrameHook {
	return func(raw []byte, _ ecu.Frame, _ bool) {
		r.mu.Lock()
		failed := r.failed
		r.mu.Unlock()
		if failed {
			return
		}
		if err := r.Record(raw, time.Now()); err != nil {
			log.Printf("[capture] %v (recording stopped)", err)
			r.mu.Lock()
			r.failed = true
			r.mu.Unlock()
		}
	}
}

// Close closes the destination if it is closable.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.dest.(io.Closer); ok {
		log.Printf("[capture] closed after %d frames", r.frames)
		return c.Close()
	}
	return nil
}

// ReadIn decodes messages from r into out until EOF and closes out.
func ReadIn(out chan<- Message, r io.Reader) error {
	defer close(out)

	dec := gob.NewDecoder(r)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("capture: while decoding: %w", err)
		}
		out <- msg
	}
}
