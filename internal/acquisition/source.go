package acquisition

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SignalFunc returns the signal value at the given elapsed session time in seconds.
type SignalFunc func(elapsed float64) float64

// Command is written to a transport to start or stop the remote producer.
type Command string

const (
	CommandStop  Command = "0"
	CommandStart Command = "1"
)

// Transport is a polled text source: one numeric token per read.
type Transport interface {
	// ReadToken returns the next token, or "" when nothing arrived in time.
	ReadToken(ctx context.Context) (string, error)
	Send(ctx context.Context, cmd Command) error
	Close() error
}

// OpenFunc opens a transport. It is called once while constructing an Acquirer.
type OpenFunc func(ctx context.Context) (Transport, error)

// source is either a transportSource or a signalSource, never both.
type source interface {
	kind() string
}

type transportSource struct {
	transport Transport
}

func (transportSource) kind() string { return "transport" }

type signalSource struct {
	fn SignalFunc
}

func (signalSource) kind() string { return "signal" }

// ParseToken parses one transport token. Empty, unparseable and non-finite
// tokens yield ErrMalformedSample.
func ParseToken(token string) (float64, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return 0, fmt.Errorf("%w: empty token", ErrMalformedSample)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedSample, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value %q", ErrMalformedSample, s)
	}
	return v, nil
}
