package config

import "errors"

var (
	ErrReadingConfigFile          = errors.New("failed to read config file")
	ErrUnmarshallingConfig        = errors.New("failed to unmarshal config")
	ErrConfigFileMissing          = errors.New("config file not found")
	ErrUnknownSource              = errors.New("acquisition source must be one of signal, serial, kafka, nats")
	ErrUnknownRestartPolicy       = errors.New("acquisition restartPolicy must be clear or keep")
	ErrInvalidSamplingInterval    = errors.New("acquisition samplingInterval must be positive")
	ErrInvalidMaxDataLength       = errors.New("buffer maxDataLength must be positive")
	ErrInvalidDataProportion      = errors.New("estimator dataProportion must be in (0, 1]")
	ErrInvalidCalculationDelay    = errors.New("estimator calculationDelay must be positive")
	ErrInvalidRateHistoryLength   = errors.New("estimator rateHistoryMaxLength must be positive")
	ErrInvalidFrameInterval       = errors.New("presentation frameInterval must be positive")
	ErrEmptySerialPort            = errors.New("serial port cannot be empty")
	ErrEmptyKafkaBrokers          = errors.New("kafka brokers list cannot be empty")
	ErrEmptyKafkaTopic            = errors.New("kafka topic cannot be empty")
	ErrEmptyNATSSubject           = errors.New("nats subject cannot be empty")
	ErrInvertedBPMAlertThresholds = errors.New("alerts bpmMin must not exceed bpmMax")
)
