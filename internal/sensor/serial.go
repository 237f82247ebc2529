package sensor

import (
	"bufio"
	"time"

	"go.bug.st/serial"

	"github.com/RUBclim/vpf-730/internal/types"
)

// Source obtains a single Measurement from the sensor. It returns (nil,
// nil) on an empty read (sensor timeout) per spec: a timeout never
// raises, it just yields no measurement for that tick.
type Source interface {
	Measure() (*types.Measurement, error)
	Close() error
}

// SerialSource talks to a VPF-730 over a serial line using go.bug.st/serial.
// Polled mode (the default) writes "D?\r\n" before reading; unpolled mode
// just waits for the sensor's next spontaneously emitted frame.
type SerialSource struct {
	port       serial.Port
	polledMode bool
}

// SerialConfig carries the subset of serial line parameters the VPF-730
// manual documents. OpenSerial passes the fields to the port as given;
// zero values are not replaced by defaults. DefaultSerialConfig returns
// the sensor's factory settings (1200 baud, 8N1).
type SerialConfig struct {
	BaudRate   int
	DataBits   int
	Parity     serial.Parity
	StopBits   serial.StopBits
	ReadTimeout time.Duration
	PolledMode bool
}

// DefaultSerialConfig matches the VPF-730 factory serial settings.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    1200,
		DataBits:    8,
		Parity:      serial.NoParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: 3 * time.Second,
		PolledMode:  true,
	}
}

// OpenSerial opens devPath with cfg and returns a ready-to-use Source.
func OpenSerial(devPath string, cfg SerialConfig) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}
	port, err := serial.Open(devPath, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return &SerialSource{port: port, polledMode: cfg.PolledMode}, nil
}

// Measure polls the sensor (if in polled mode) and reads one CR
// LF-terminated frame. An empty read (the configured read timeout
// elapsing with no data) yields (nil, nil), matching "an empty read
// (timeout) yields no Measurement and must not raise."
func (s *SerialSource) Measure() (*types.Measurement, error) {
	if s.polledMode {
		if _, err := s.port.Write([]byte("D?\r\n")); err != nil {
			return nil, err
		}
	}

	reader := bufio.NewReader(s.port)
	line, _ := reader.ReadBytes('\n')
	if len(line) == 0 {
		// Read timeout: the sensor emitted nothing within ReadTimeout.
		return nil, nil
	}

	return ParseFrame(line, time.Now().UTC())
}

// Close releases the underlying serial port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}
