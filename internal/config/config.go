package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SourceSignal = "signal"
	SourceSerial = "serial"
	SourceKafka  = "kafka"
	SourceNATS   = "nats"
)

const (
	defaultSource               = SourceSignal
	defaultSamplingInterval     = 4 * time.Millisecond
	defaultRestartPolicy        = "clear"
	defaultAutoStart            = true
	defaultWaveform             = "periodic"
	defaultMaxDataLength        = 1500
	defaultDataProportion       = 0.5
	defaultCalculationDelay     = 500 * time.Millisecond
	defaultRateHistoryMaxLength = 10
	defaultSerialBaudRate       = 9600
	defaultSerialReadTimeout    = 1 * time.Second
	defaultSerialSettleDelay    = 2 * time.Second
	defaultKafkaGroupID         = "heartlens-default-group"
	defaultKafkaControlTopic    = "ecg-control"
	defaultKafkaCommitInterval  = 1 * time.Second
	defaultBrokerReadTimeout    = 1 * time.Second
	defaultNATSURL              = "nats://127.0.0.1:4222"
	defaultNATSControlSubject   = "ecg.control"
	defaultPresentationAddr     = ":8080"
	defaultFrameInterval        = 40 * time.Millisecond
	defaultLogLevel             = "info"
	defaultLogFormat            = "console"
	defaultLogFileEnabled       = false
	defaultLogDirectory         = "log"
	defaultLogFilename          = "heartlens.log"
	defaultLogMaxSizeMB         = 100
	defaultLogMaxBackups        = 3
	defaultLogMaxAgeDays        = 7
	defaultLogCompress          = false

	// Environment variable prefix
	envPrefix = "HEARTLENS"
)

type Config struct {
	Acquisition  AcquisitionConfig  `mapstructure:"acquisition"`
	Serial       SerialConfig       `mapstructure:"serial"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Buffer       BufferConfig       `mapstructure:"buffer"`
	Estimator    EstimatorConfig    `mapstructure:"estimator"`
	Alerts       AlertsConfig       `mapstructure:"alerts"`
	Presentation PresentationConfig `mapstructure:"presentation"`
	Log          LogConfig          `mapstructure:"log"`
}

type AcquisitionConfig struct {
	Source           string        `mapstructure:"source"` // signal, serial, kafka, nats
	SamplingInterval time.Duration `mapstructure:"samplingInterval"`
	RestartPolicy    string        `mapstructure:"restartPolicy"` // clear, keep
	AutoStart        bool          `mapstructure:"autoStart"`
	Signal           SignalConfig  `mapstructure:"signal"`
}

// SignalConfig parameterizes the synthetic waveform used by the signal source
// and as the fallback when a transport cannot be opened.
type SignalConfig struct {
	Waveform                string  `mapstructure:"waveform"` // periodic, ecg
	Amplitude               float64 `mapstructure:"amplitude"`
	FrequencyHz             float64 `mapstructure:"frequencyHz"`
	PhaseRad                float64 `mapstructure:"phaseRad"`
	InterferenceAmplitude   float64 `mapstructure:"interferenceAmplitude"`
	InterferenceFrequencyHz float64 `mapstructure:"interferenceFrequencyHz"`
	NoiseMean               float64 `mapstructure:"noiseMean"`
	NoiseStdDev             float64 `mapstructure:"noiseStdDev"`
	HeartRateBPM            float64 `mapstructure:"heartRateBPM"`
	Seed                    int64   `mapstructure:"seed"`
}

type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baudRate"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SettleDelay time.Duration `mapstructure:"settleDelay"` // Wait after opening before first read
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"groupID"`
	ControlTopic   string        `mapstructure:"controlTopic"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	CommitInterval time.Duration `mapstructure:"commitInterval"` // Group offsets are committed in batches at this interval
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Subject        string        `mapstructure:"subject"`
	ControlSubject string        `mapstructure:"controlSubject"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
}

type BufferConfig struct {
	MaxDataLength int `mapstructure:"maxDataLength"`
}

type EstimatorConfig struct {
	DataProportion       float64       `mapstructure:"dataProportion"`
	CalculationDelay     time.Duration `mapstructure:"calculationDelay"`
	RateHistoryMaxLength int           `mapstructure:"rateHistoryMaxLength"`
}

// AlertsConfig holds optional BPM bounds checked on every recomputed estimate.
type AlertsConfig struct {
	BPMMin *float64 `mapstructure:"bpmMin"`
	BPMMax *float64 `mapstructure:"bpmMax"`
}

type PresentationConfig struct {
	Addr          string        `mapstructure:"addr"`
	FrameInterval time.Duration `mapstructure:"frameInterval"`
}

type LogConfig struct {
	Level              string `mapstructure:"level"`
	Format             string `mapstructure:"format"`
	FileLoggingEnabled bool   `mapstructure:"fileLoggingEnabled"`
	Directory          string `mapstructure:"directory"`
	Filename           string `mapstructure:"filename"`
	MaxSize            int    `mapstructure:"maxSize"`    // Max size in MB
	MaxBackups         int    `mapstructure:"maxBackups"` // Max backup files
	MaxAge             int    `mapstructure:"maxAge"`     // Max days to retain
	Compress           bool   `mapstructure:"compress"`   // Compress rotated files?
}

// Load initializes viper, reads config, applies defaults, unmarshals, and validates.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	configureViper(v, configPath)

	// Set default values before reading config source .yaml
	setDefaults(v)

	// Read configuration from file (error if mandatory file is missing)
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshallingConfig, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// configureViper sets up viper instance for file and environment variables.
func configureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults applies default configuration values using Viper.
func setDefaults(v *viper.Viper) {
	signal := DefaultSignalConfig()

	v.SetDefault("acquisition.source", defaultSource)
	v.SetDefault("acquisition.samplingInterval", defaultSamplingInterval)
	v.SetDefault("acquisition.restartPolicy", defaultRestartPolicy)
	v.SetDefault("acquisition.autoStart", defaultAutoStart)
	v.SetDefault("acquisition.signal.waveform", signal.Waveform)
	v.SetDefault("acquisition.signal.amplitude", signal.Amplitude)
	v.SetDefault("acquisition.signal.frequencyHz", signal.FrequencyHz)
	v.SetDefault("acquisition.signal.phaseRad", signal.PhaseRad)
	v.SetDefault("acquisition.signal.interferenceAmplitude", signal.InterferenceAmplitude)
	v.SetDefault("acquisition.signal.interferenceFrequencyHz", signal.InterferenceFrequencyHz)
	v.SetDefault("acquisition.signal.noiseMean", signal.NoiseMean)
	v.SetDefault("acquisition.signal.noiseStdDev", signal.NoiseStdDev)
	v.SetDefault("acquisition.signal.heartRateBPM", signal.HeartRateBPM)
	v.SetDefault("acquisition.signal.seed", signal.Seed)
	v.SetDefault("serial.baudRate", defaultSerialBaudRate)
	v.SetDefault("serial.readTimeout", defaultSerialReadTimeout)
	v.SetDefault("serial.settleDelay", defaultSerialSettleDelay)
	v.SetDefault("kafka.groupID", defaultKafkaGroupID)
	v.SetDefault("kafka.controlTopic", defaultKafkaControlTopic)
	v.SetDefault("kafka.readTimeout", defaultBrokerReadTimeout)
	v.SetDefault("kafka.commitInterval", defaultKafkaCommitInterval)
	v.SetDefault("nats.url", defaultNATSURL)
	v.SetDefault("nats.controlSubject", defaultNATSControlSubject)
	v.SetDefault("nats.readTimeout", defaultBrokerReadTimeout)
	v.SetDefault("buffer.maxDataLength", defaultMaxDataLength)
	v.SetDefault("estimator.dataProportion", defaultDataProportion)
	v.SetDefault("estimator.calculationDelay", defaultCalculationDelay)
	v.SetDefault("estimator.rateHistoryMaxLength", defaultRateHistoryMaxLength)
	v.SetDefault("presentation.addr", defaultPresentationAddr)
	v.SetDefault("presentation.frameInterval", defaultFrameInterval)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("log.fileLoggingEnabled", defaultLogFileEnabled)
	v.SetDefault("log.directory", defaultLogDirectory)
	v.SetDefault("log.filename", defaultLogFilename)
	v.SetDefault("log.maxSize", defaultLogMaxSizeMB)
	v.SetDefault("log.maxBackups", defaultLogMaxBackups)
	v.SetDefault("log.maxAge", defaultLogMaxAgeDays)
	v.SetDefault("log.compress", defaultLogCompress)
}

// DefaultSignalConfig mirrors the periodic generator defaults.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		Waveform:                defaultWaveform,
		Amplitude:               5.0,
		FrequencyHz:             1.0,
		PhaseRad:                0.5,
		InterferenceAmplitude:   0.7,
		InterferenceFrequencyHz: 25.0,
		NoiseStdDev:             0.15,
		HeartRateBPM:            72,
		Seed:                    1,
	}
}

// readConfigFile attempts to read the configuration file specified in viper.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) || errors.Is(err, fs.ErrNotExist) {
			return ErrConfigFileMissing
		}
		return fmt.Errorf("%w: %w", ErrReadingConfigFile, err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	acq := cfg.Acquisition
	switch acq.Source {
	case SourceSignal:
	case SourceSerial:
		if cfg.Serial.Port == "" {
			return ErrEmptySerialPort
		}
	case SourceKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return ErrEmptyKafkaBrokers
		}
		if cfg.Kafka.Topic == "" {
			return ErrEmptyKafkaTopic
		}
	case SourceNATS:
		if cfg.NATS.Subject == "" {
			return ErrEmptyNATSSubject
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, acq.Source)
	}

	if acq.RestartPolicy != "clear" && acq.RestartPolicy != "keep" {
		return fmt.Errorf("%w: %q", ErrUnknownRestartPolicy, acq.RestartPolicy)
	}
	if acq.SamplingInterval <= 0 {
		return ErrInvalidSamplingInterval
	}
	if cfg.Buffer.MaxDataLength <= 0 {
		return ErrInvalidMaxDataLength
	}
	if cfg.Estimator.DataProportion <= 0 || cfg.Estimator.DataProportion > 1 {
		return ErrInvalidDataProportion
	}
	if cfg.Estimator.CalculationDelay <= 0 {
		return ErrInvalidCalculationDelay
	}
	if cfg.Estimator.RateHistoryMaxLength <= 0 {
		return ErrInvalidRateHistoryLength
	}
	if cfg.Presentation.FrameInterval <= 0 {
		return ErrInvalidFrameInterval
	}
	if cfg.Alerts.BPMMin != nil && cfg.Alerts.BPMMax != nil && *cfg.Alerts.BPMMin > *cfg.Alerts.BPMMax {
		return ErrInvertedBPMAlertThresholds
	}
	return nil
}
