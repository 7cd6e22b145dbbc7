package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/config"
	"github.com/sanspareilsmyn/heartlens/internal/transport"
)

// tokenSink publishes sample tokens and delivers start/stop commands.
type tokenSink interface {
	Publish(ctx context.Context, token string) error
	Commands() <-chan acquisition.Command
	Close() error
}

type kafkaSink struct {
	writer   *kafka.Writer
	control  *kafka.Reader
	commands chan acquisition.Command
	cancel   context.CancelFunc
	done     chan struct{}
}

func newKafkaSink(ctx context.Context, cfg config.KafkaConfig, logger *zap.Logger) (*kafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}

	s := &kafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(_ []kafka.Message, err error) {
				if err != nil {
					logger.Warn("Async kafka write failed", zap.Error(err))
				}
			},
		},
		commands: make(chan acquisition.Command, 1),
		done:     make(chan struct{}),
	}

	if cfg.ControlTopic == "" {
		close(s.done)
		return s, nil
	}

	s.control = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.ControlTopic,
		GroupID:        "heartlens-producer",
		CommitInterval: cfg.CommitInterval,
	})
	ctrlCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		defer close(s.done)
		for {
			msg, err := s.control.ReadMessage(ctrlCtx)
			if err != nil {
				if ctrlCtx.Err() != nil {
					return
				}
				logger.Warn("Failed to read control message", zap.Error(err))
				continue
			}
			deliver(ctrlCtx, s.commands, msg.Value)
		}
	}()
	return s, nil
}

func (s *kafkaSink) Publish(ctx context.Context, token string) error {
	return s.writer.WriteMessages(ctx, kafka.Message{Value: []byte(token)})
}

func (s *kafkaSink) Commands() <-chan acquisition.Command { return s.commands }

func (s *kafkaSink) Close() error {
	var errs []error
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	if s.control != nil {
		errs = append(errs, s.control.Close())
	}
	errs = append(errs, s.writer.Close())
	return errors.Join(errs...)
}

type natsSink struct {
	conn     *nats.Conn
	subject  string
	sub      *nats.Subscription
	commands chan acquisition.Command
}

func newNATSSink(cfg config.NATSConfig, logger *zap.Logger) (*natsSink, error) {
	if cfg.URL == "" || cfg.Subject == "" {
		return nil, errors.New("nats url and subject are required")
	}
	nc, err := transport.Connect(cfg.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	s := &natsSink{conn: nc, subject: cfg.Subject, commands: make(chan acquisition.Command, 1)}
	if cfg.ControlSubject != "" {
		s.sub, err = nc.Subscribe(cfg.ControlSubject, func(msg *nats.Msg) {
			deliver(context.Background(), s.commands, msg.Data)
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats subscribe %s: %w", cfg.ControlSubject, err)
		}
	}
	return s, nil
}

func (s *natsSink) Publish(_ context.Context, token string) error {
	return s.conn.Publish(s.subject, []byte(token))
}

func (s *natsSink) Commands() <-chan acquisition.Command { return s.commands }

func (s *natsSink) Close() error {
	return s.conn.Drain()
}

// deliver forwards a recognized command, replacing one not yet consumed.
func deliver(ctx context.Context, ch chan acquisition.Command, payload []byte) {
	cmd := acquisition.Command(strings.TrimSpace(string(payload)))
	if cmd != acquisition.CommandStart && cmd != acquisition.CommandStop {
		return
	}
	for {
		select {
		case ch <- cmd:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
