package ecu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sink consumes decoded frames in wire order.
type Sink interface {
	Publish(f Frame, at time.Time)
}

// FrameHook observes every completed frame. raw is only valid for the
// duration of the call.
type FrameHook func(raw []byte, f Frame, accepted bool)

// SyncConfig holds the Synchronizer configuration.
type SyncConfig struct {
	Decoder Decoder
	Sinks   []Sink
	OnFrame FrameHook

	// StatsInterval is the frame rate sampling period. Default 1s.
	StatsInterval time.Duration
}

// Stats is a snapshot of the synchronizer counters.
type Stats struct {
	Synchronized    bool  `json:"synchronized"`
	SyncErrors      int64 `json:"syncErrors"`
	FramesPerSecond int64 `json:"framesPerSecond"`
	Frames          int64 `json:"frames"`
	Rejected        int64 `json:"rejected"` // delivered with accepted=false
}

// Synchronizer recovers XR25 frames from a byte stream, decodes them and
// fans them out to sinks. Two goroutines run per session: the byte
// reader and the frame rate ticker. All counters are written by those
// goroutines only and may be read from anywhere.
type Synchronizer struct {
	dec      Decoder
	sinks    []Sink
	onFrame  FrameHook
	interval time.Duration

	synced   atomic.Bool
	syncErrs atomic.Int64
	fps      atomic.Int64
	frames   atomic.Int64
	rejected atomic.Int64
	window   atomic.Int64 // frames since the last rate sample

	mu  sync.Mutex
	run *session
}

type session struct {
	src    io.Reader
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewSynchronizer creates a Synchronizer. cfg.Decoder is required.
func NewSynchronizer(cfg SyncConfig) *Synchronizer {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Second
	}
	return &Synchronizer{
		dec:      cfg.Decoder,
		sinks:    cfg.Sinks,
		onFrame:  cfg.OnFrame,
		interval: cfg.StatsInterval,
	}
}

// Start begins a capture session reading from src. Counters are reset.
// The session ends when src is exhausted, a read fails, ctx is
// cancelled or Stop is called.
func (s *Synchronizer) Start(ctx context.Context, src io.Reader) error {
	if s.dec == nil {
		return fmt.Errorf("ecu: synchronizer has no decoder")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		select {
		case <-s.run.done:
		default:
			return fmt.Errorf("ecu: synchronizer already running")
		}
	}

	s.synced.Store(false)
	s.syncErrs.Store(0)
	s.fps.Store(0)
	s.frames.Store(0)
	s.rejected.Store(0)
	s.window.Store(0)

	ctx, cancel := context.WithCancel(ctx)
	run := &session{src: src, cancel: cancel, done: make(chan struct{})}
	s.run = run

	var g errgroup.Group
	g.Go(func() error {
		// End of stream also ends the rate ticker.
		defer cancel()
		return s.readFrames(ctx, src)
	})
	g.Go(func() error {
		s.tick(ctx)
		return nil
	})
	go func() {
		run.err = g.Wait()
		s.synced.Store(false)
		s.fps.Store(0)
		close(run.done)
	}()

	log.Printf("[xr25] session started (decoder=%s)", s.dec.Name())
	return nil
}

// Stop ends the current session and waits for both goroutines to exit.
// No sink or hook is called after Stop returns. Stop is idempotent; it
// must not be called from a Sink or FrameHook.
func (s *Synchronizer) Stop() error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil
	}

	run.cancel()
	if c, ok := run.src.(io.Closer); ok {
		// Unblocks a Read on pipes and files.
		_ = c.Close()
	}
	<-run.done
	return run.err
}

// Wait blocks until the current session ends and returns its error.
// End of stream is not an error.
func (s *Synchronizer) Wait() error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil
	}
	<-run.done
	return run.err
}

// IsSynchronized reports whether the reader is aligned on frame headers.
func (s *Synchronizer) IsSynchronized() bool { return s.synced.Load() }

// SyncErrors counts frame buffer overflows since Start.
func (s *Synchronizer) SyncErrors() int64 { return s.syncErrs.Load() }

// FramesPerSecond is the frame count of the last completed stats interval.
func (s *Synchronizer) FramesPerSecond() int64 { return s.fps.Load() }

// FrameCount counts frames delivered since Start.
func (s *Synchronizer) FrameCount() int64 { return s.frames.Load() }

// Rejected counts delivered frames the decoder did not accept.
func (s *Synchronizer) Rejected() int64 { return s.rejected.Load() }

// Stats returns a snapshot of all counters.
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Synchronized:    s.synced.Load(),
		SyncErrors:      s.syncErrs.Load(),
		FramesPerSecond: s.fps.Load(),
		Frames:          s.frames.Load(),
		Rejected:        s.rejected.Load(),
	}
}

// tick samples the frame arrival counter once per interval, independent
// of decode timing.
func (s *Synchronizer) tick(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := s.window.Swap(0)
			s.fps.Store(n * int64(time.Second) / int64(s.interval))
		}
	}
}

func (s *Synchronizer) readFrames(ctx context.Context, src io.Reader) error {
	in := newByteReader(src)
	frame := make([]byte, 0, MaxFrameSize)

	for {
		c, err := in.next(ctx)
		if err != nil {
			return s.endOfStream(ctx, err)
		}

		if c == escByte {
			c2, err := in.next(ctx)
			if err != nil {
				return s.endOfStream(ctx, err)
			}
			switch c2 {
			case startByte:
				if s.synced.Load() {
					s.deliver(ctx, frame)
				}
				s.synced.Store(true)
				frame = append(frame[:0], escByte, startByte)
				continue
			case escByte:
				// FF FF is a stuffed FF.
			default:
				in.unread()
			}
		}

		if !s.synced.Load() {
			continue
		}
		if len(frame) == MaxFrameSize {
			s.synced.Store(false)
			s.syncErrs.Add(1)
			frame = frame[:0]
			continue
		}
		frame = append(frame, c)
	}
}

func (s *Synchronizer) deliver(ctx context.Context, raw []byte) {
	if ctx.Err() != nil {
		return
	}
	f, accepted := s.dec.Decode(raw)
	if !accepted {
		s.rejected.Add(1)
	}
	s.frames.Add(1)
	s.window.Add(1)

	at := time.Now()
	for _, sink := range s.sinks {
		sink.Publish(f, at)
	}
	if s.onFrame != nil {
		s.onFrame(raw, f, accepted)
	}
}

func (s *Synchronizer) endOfStream(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, io.EOF):
		log.Printf("[xr25] end of stream after %d frames", s.frames.Load())
		return nil
	default:
		return fmt.Errorf("ecu: read: %w", err)
	}
}

// byteReader reads one byte at a time with one byte of push-back.
// bufio.Reader is not used because serial ports return (0, nil) on read
// timeout, which bufio turns into io.ErrNoProgress.
type byteReader struct {
	src    io.Reader
	buf    []byte
	r, w   int
	err    error
	last   byte
	pushed bool
}

func newByteReader(src io.Reader) *byteReader {
	return &byteReader{src: src, buf: make([]byte, 256)}
}

func (b *byteReader) next(ctx context.Context) (byte, error) {
	if b.pushed {
		b.pushed = false
		return b.last, nil
	}
	for b.r == b.w {
		if b.err != nil {
			return 0, b.err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := b.src.Read(b.buf)
		b.r, b.w = 0, n
		b.err = err
	}
	b.last = b.buf[b.r]
	b.r++
	return b.last, nil
}

// unread pushes back the last byte returned by next.
func (b *byteReader) unread() { b.pushed = true }
