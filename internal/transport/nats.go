package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/config"
)

// NATS reads one sample token per message from a subject and publishes
// start/stop commands to a control subject.
type NATS struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	cfg    config.NATSConfig
	logger *zap.Logger
}

// Connect dials NATS with unlimited reconnects; connection state changes are logged.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("heartlens"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// OpenNATS returns an OpenFunc that connects and subscribes to the sample subject.
func OpenNATS(cfg config.NATSConfig, logger *zap.Logger) acquisition.OpenFunc {
	return func(ctx context.Context) (acquisition.Transport, error) {
		if cfg.URL == "" || cfg.Subject == "" {
			return nil, ErrInvalidNATSConfig
		}
		nc, err := Connect(cfg.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNATSConnectFailed, err)
		}
		sub, err := nc.SubscribeSync(cfg.Subject)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("%w: subscribe %s: %w", ErrNATSConnectFailed, cfg.Subject, err)
		}

		logger.Info("NATS transport created",
			zap.String("url", nc.ConnectedUrl()),
			zap.String("subject", cfg.Subject),
			zap.String("control_subject", cfg.ControlSubject),
		)
		return &NATS{conn: nc, sub: sub, cfg: cfg, logger: logger}, nil
	}
}

// ReadToken waits up to ReadTimeout for the next message and returns its payload.
func (n *NATS) ReadToken(ctx context.Context) (string, error) {
	readCtx := ctx
	if n.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, n.cfg.ReadTimeout)
		defer cancel()
	}

	msg, err := n.sub.NextMsgWithContext(readCtx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return "", nil
		}
		return "", fmt.Errorf("nats next message: %w", err)
	}
	return string(msg.Data), nil
}

// Send publishes cmd on the control subject.
func (n *NATS) Send(_ context.Context, cmd acquisition.Command) error {
	if n.cfg.ControlSubject == "" {
		return ErrNoControlChannel
	}
	return n.conn.Publish(n.cfg.ControlSubject, []byte(cmd))
}

func (n *NATS) Close() error {
	n.logger.Info("Draining NATS connection")
	return n.conn.Drain()
}
