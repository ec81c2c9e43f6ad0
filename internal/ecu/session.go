package ecu

import (
	"context"
	"log"
	"time"
)

var (
	retryInitial = 1 * time.Second
	retryMax     = 60 * time.Second
)

// RunSession connects prov with exponential backoff and feeds its byte
// stream to s. Read errors trigger a reconnect. A session that fails
// before delivering a frame backs off like a failed connect; the delay
// resets once a session delivers frames. It returns nil once the source
// reaches a clean end of stream or ctx is cancelled.
func RunSession(ctx context.Context, prov Provider, s *Synchronizer) error {
	defer prov.Close()

	delay := retryInitial
	for {
		if err := connectWithRetry(ctx, prov); err != nil {
			return nil
		}
		if err := s.Start(ctx, prov.Reader()); err != nil {
			return err
		}

		stopped := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				s.Stop()
			case <-stopped:
			}
		}()
		err := s.Wait()
		close(stopped)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			log.Printf("[%s] stream ended", prov.Name())
			return nil
		}

		prov.Close()
		if s.FrameCount() > 0 {
			log.Printf("[%s] session failed: %v (reconnecting)", prov.Name(), err)
			delay = retryInitial
			continue
		}

		log.Printf("[%s] session failed before any frame: %v (retry in %v)", prov.Name(), err, delay)
		if !sleep(ctx, delay) {
			return nil
		}
		delay = nextDelay(delay)
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > retryMax {
		d = retryMax
	}
	return d
}

// connectWithRetry starts at retryInitial and doubles each attempt up to
// retryMax. It only returns an error when ctx is cancelled.
func connectWithRetry(ctx context.Context, prov Provider) error {
	delay := retryInitial
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := prov.Connect()
		if err == nil {
			log.Printf("[%s] connected (attempt %d)", prov.Name(), attempt+1)
			return nil
		}
		attempt++
		log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
			prov.Name(), attempt, err, delay)

		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay)
	}
}
