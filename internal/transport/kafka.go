package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/config"
)

const defaultCommitInterval = time.Second

type kafkaZapLogger struct {
	log *zap.Logger
}

func (l kafkaZapLogger) Printf(msg string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(msg, args...))
}

type kafkaZapErrorLogger struct {
	log *zap.Logger
}

func (l kafkaZapErrorLogger) Printf(msg string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

// Kafka reads one sample token per message from a topic and publishes
// start/stop commands to a control topic.
type Kafka struct {
	reader *kafka.Reader
	writer *kafka.Writer
	cfg    config.KafkaConfig
	logger *zap.Logger
}

// OpenKafka returns an OpenFunc that checks a broker is reachable before
// creating the reader and the optional control writer.
func OpenKafka(cfg config.KafkaConfig, logger *zap.Logger) acquisition.OpenFunc {
	return func(ctx context.Context) (acquisition.Transport, error) {
		if len(cfg.Brokers) == 0 || cfg.Topic == "" {
			logger.Error("Kafka configuration validation failed",
				zap.Strings("brokers", cfg.Brokers),
				zap.String("topic", cfg.Topic),
			)
			return nil, ErrInvalidKafkaConfig
		}
		if err := probeBrokers(ctx, cfg.Brokers); err != nil {
			return nil, err
		}
		return NewKafka(cfg, logger), nil
	}
}

func probeBrokers(ctx context.Context, brokers []string) error {
	var errs []error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("%w: %w", ErrKafkaUnreachable, errors.Join(errs...))
}

// readerConfig keeps group offset commits asynchronous: with a positive
// CommitInterval, CommitMessages only queues offsets for the reader's commit loop.
func readerConfig(cfg config.KafkaConfig, logger *zap.Logger) kafka.ReaderConfig {
	readerCfg := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		Logger:      kafkaZapLogger{logger.Named("kafka-reader").WithOptions(zap.AddCallerSkip(1))},
		ErrorLogger: kafkaZapErrorLogger{logger.Named("kafka-reader-error").WithOptions(zap.AddCallerSkip(1))},
	}
	if cfg.GroupID != "" {
		readerCfg.CommitInterval = cfg.CommitInterval
		if readerCfg.CommitInterval <= 0 {
			readerCfg.CommitInterval = defaultCommitInterval
		}
	}
	return readerCfg
}

// NewKafka creates the reader and writer without contacting the brokers.
func NewKafka(cfg config.KafkaConfig, logger *zap.Logger) *Kafka {
	readerCfg := readerConfig(cfg, logger)

	var writer *kafka.Writer
	if cfg.ControlTopic != "" {
		writer = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.ControlTopic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			ErrorLogger:            kafkaZapErrorLogger{logger.Named("kafka-writer-error").WithOptions(zap.AddCallerSkip(1))},
		}
	}

	logger.Info("Kafka transport created",
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
		zap.String("control_topic", cfg.ControlTopic),
		zap.Strings("brokers", cfg.Brokers),
		zap.Duration("read_timeout", cfg.ReadTimeout),
		zap.Duration("commit_interval", readerCfg.CommitInterval),
	)

	return &Kafka{
		reader: kafka.NewReader(readerCfg),
		writer: writer,
		cfg:    cfg,
		logger: logger,
	}
}

// ReadToken waits up to ReadTimeout for the next message and returns its value.
// Within a consumer group the offset is queued for the next batched commit.
func (k *Kafka) ReadToken(ctx context.Context) (string, error) {
	readCtx := ctx
	if k.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, k.cfg.ReadTimeout)
		defer cancel()
	}

	m, err := k.reader.FetchMessage(readCtx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %w", ErrKafkaFetchFailed, err)
	}

	if k.cfg.GroupID != "" {
		if err := k.reader.CommitMessages(ctx, m); err != nil {
			k.logger.Warn("Failed to queue offset commit",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
	return string(m.Value), nil
}

// Send publishes cmd to the control topic.
func (k *Kafka) Send(ctx context.Context, cmd acquisition.Command) error {
	if k.writer == nil {
		return ErrNoControlChannel
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Value: []byte(cmd)})
}

func (k *Kafka) Close() error {
	sugar := k.logger.Sugar()
	sugar.Info("Closing Kafka transport...")

	var errs []error
	if err := k.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("reader: %w", err))
	}
	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("writer: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		sugar.Errorw("Failed to close Kafka transport cleanly", zap.Error(err))
		return err
	}
	sugar.Info("Kafka transport closed successfully.")
	return nil
}
