package ecu

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial implements Provider for an XR25 K-line adapter on a serial port.
// The ECU streams frames continuously once the line is open; nothing is
// written to it.
type Serial struct {
	portPath string
	baudRate int
	timeout  time.Duration

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

// SerialConfig holds connection settings for the Serial provider.
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

const (
	defaultBaudRate = 62500

	// serialReadTimeout bounds how long a Read blocks with no data, so a
	// stopping reader observes cancellation promptly.
	serialReadTimeout = 200 * time.Millisecond

	drainSilence = 50 * time.Millisecond
	drainTimeout = 500 * time.Millisecond
)

// NewSerial creates a new Serial provider.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	return &Serial{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		timeout:  serialReadTimeout,
	}
}

func (s *Serial) Name() string { return "XR25 Serial" }

// Connect opens the port in 8N1 mode and discards whatever the driver
// buffered before the open.
func (s *Serial) Connect() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portPath, mode)
	if err != nil {
		return fmt.Errorf("serial: failed to open %s: %w", s.portPath, err)
	}
	if err := port.SetReadTimeout(s.timeout); err != nil {
		port.Close()
		return fmt.Errorf("serial: failed to set timeout: %w", err)
	}

	log.Printf("[serial] opened %s at %d baud", s.portPath, s.baudRate)
	drain(port)

	s.mu.Lock()
	s.port = port
	s.connected = true
	s.mu.Unlock()
	return nil
}

// drain empties the input buffer until the line is silent.
func drain(port serial.Port) {
	if err := port.ResetInputBuffer(); err != nil {
		log.Printf("[serial] reset input buffer: %v", err)
	}
	_ = port.SetReadTimeout(drainSilence)
	defer port.SetReadTimeout(serialReadTimeout)

	total := 0
	deadline := time.Now().Add(drainTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, _ := port.Read(buf)
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		log.Printf("[serial] drained %d stale bytes", total)
	}
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Reader returns the byte stream of the open port. A read timeout is
// reported as (0, nil). The returned reader does not close the port.
func (s *Serial) Reader() io.Reader {
	return portReader{s}
}

type portReader struct{ s *Serial }

func (r portReader) Read(p []byte) (int, error) {
	r.s.mu.Lock()
	port := r.s.port
	r.s.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("serial: not connected")
	}
	return port.Read(p)
}
