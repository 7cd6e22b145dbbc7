package transport

import "errors"

var (
	ErrSerialOpenFailed   = errors.New("failed to open serial port")
	ErrInvalidKafkaConfig = errors.New("invalid Kafka configuration provided")
	ErrKafkaUnreachable   = errors.New("no Kafka broker reachable")
	ErrKafkaFetchFailed   = errors.New("failed to fetch message from Kafka")
	ErrInvalidNATSConfig  = errors.New("invalid NATS configuration provided")
	ErrNATSConnectFailed  = errors.New("failed to connect to NATS")
	ErrNoControlChannel   = errors.New("transport has no control channel configured")
)
