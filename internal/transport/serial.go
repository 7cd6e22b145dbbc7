package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/config"
)

// maxLineLength bounds a pending line; longer garbage is handed back as one malformed token.
const maxLineLength = 256

// Serial reads newline-terminated float tokens from a device and writes
// single-byte start/stop commands back to it.
type Serial struct {
	rw      io.ReadWriteCloser
	pending []byte
	chunk   []byte
	logger  *zap.Logger
}

// OpenSerial returns an OpenFunc for the configured serial port. The port is
// flushed and given SettleDelay to reset before the first read.
func OpenSerial(cfg config.SerialConfig, logger *zap.Logger) acquisition.OpenFunc {
	return func(ctx context.Context) (acquisition.Transport, error) {
		port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSerialOpenFailed, cfg.Port, err)
		}
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("%w: set read timeout: %w", ErrSerialOpenFailed, err)
		}
		if err := port.ResetInputBuffer(); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("%w: flush input: %w", ErrSerialOpenFailed, err)
		}

		if cfg.SettleDelay > 0 {
			timer := time.NewTimer(cfg.SettleDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				_ = port.Close()
				return nil, ctx.Err()
			}
		}

		logger.Info("Serial port opened",
			zap.String("port", cfg.Port),
			zap.Int("baud_rate", cfg.BaudRate),
			zap.Duration("read_timeout", cfg.ReadTimeout),
		)
		return NewSerial(port, logger), nil
	}
}

// NewSerial wraps an already opened port. Reads returning no bytes are
// treated as a timeout.
func NewSerial(rw io.ReadWriteCloser, logger *zap.Logger) *Serial {
	return &Serial{
		rw:     rw,
		chunk:  make([]byte, 64),
		logger: logger,
	}
}

// ReadToken returns the next complete line without its terminator, or "" if
// the port timed out before a line was complete.
func (s *Serial) ReadToken(ctx context.Context) (string, error) {
	for {
		if line, ok := s.nextLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := s.rw.Read(s.chunk)
		s.pending = append(s.pending, s.chunk[:n]...)
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			return "", nil
		}
	}
}

func (s *Serial) nextLine() (string, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i < 0 {
		if len(s.pending) > maxLineLength {
			junk := string(s.pending)
			s.pending = s.pending[:0]
			s.logger.Debug("Flushing overlong serial line as one token", zap.Int("length", len(junk)))
			return junk, true
		}
		return "", false
	}

	line := strings.TrimRight(string(s.pending[:i]), "\r")
	rest := copy(s.pending, s.pending[i+1:])
	s.pending = s.pending[:rest]
	return line, true
}

// Send writes the command byte to the device.
func (s *Serial) Send(_ context.Context, cmd acquisition.Command) error {
	if _, err := s.rw.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (s *Serial) Close() error {
	s.logger.Info("Closing serial port")
	return s.rw.Close()
}
