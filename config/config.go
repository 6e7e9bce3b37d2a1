package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrInvalidConfig = errors.New("invalid config")

type ChainMode string

const (
	ChainModeCLI  ChainMode = "cli"
	ChainModeRPC  ChainMode = "rpc"
	ChainModeMock ChainMode = "mock"
)

const (
	defaultBinary            = "axelard"
	defaultKeyringBackend    = "test"
	defaultGasAdjustment     = "1.4"
	defaultChainTimeout      = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultQueueName         = "amplifier"
	defaultPollInterval      = time.Second
	defaultVisibilityTimeout = 5 * time.Minute
	defaultMaxAttempts       = 10
	defaultRetryDelay        = 5 * time.Second
	defaultPresenterHost     = "0.0.0.0:3000"
	defaultMetricsHost       = "0.0.0.0:2112"
	defaultAlertsInterval    = time.Minute
	defaultStuckBroadcast    = 5 * time.Minute
)

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type MetricsConfig struct {
	Host string `yaml:"host"`
}

type AlertsConfig struct {
	Interval            time.Duration `yaml:"interval"`
	StuckBroadcastAfter time.Duration `yaml:"stuck_broadcast_after"`
}

type QueueConfig struct {
	Name              string        `yaml:"name"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

type ChainConfig struct {
	Mode           ChainMode     `yaml:"mode"`
	Binary         string        `yaml:"binary"`
	Node           string        `yaml:"node"`
	ChainID        string        `yaml:"chain_id"`
	KeyringBackend string        `yaml:"keyring_backend"`
	GasPrices      string        `yaml:"gas_prices"`
	GasAdjustment  string        `yaml:"gas_adjustment"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryAttempts  uint          `yaml:"retry_attempts"`
}

type RelayConfig struct {
	Chain           string `yaml:"chain"`
	SigningAccount  string `yaml:"signing_account"`
	MultisigAddress string `yaml:"multisig_address"`
	ProverAddress   string `yaml:"prover_address"`
}

type Config struct {
	DBConfig  *DBConfig        `yaml:"postgres"`
	LogLevel  logrus.Level     `yaml:"log_level"`
	Presenter *PresenterConfig `yaml:"presenter"`
	Metrics   *MetricsConfig   `yaml:"metrics"`
	Queue     *QueueConfig     `yaml:"queue"`
	Chain     *ChainConfig     `yaml:"chain"`
	Relay     *RelayConfig     `yaml:"relay"`
	Alerts    *AlertsConfig    `yaml:"alerts"`
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	expanded, err := expandEnv(blob)
	if err != nil {
		return nil, err
	}
	return ReadConfig(expanded)
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	cfg.init()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) init() {
	if cfg.Presenter == nil {
		cfg.Presenter = &PresenterConfig{}
	}
	if cfg.Presenter.Host == "" {
		cfg.Presenter.Host = defaultPresenterHost
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = defaultMetricsHost
	}

	if cfg.Queue == nil {
		cfg.Queue = &QueueConfig{}
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = defaultQueueName
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = defaultPollInterval
	}
	if cfg.Queue.VisibilityTimeout == 0 {
		cfg.Queue.VisibilityTimeout = defaultVisibilityTimeout
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Queue.RetryDelay == 0 {
		cfg.Queue.RetryDelay = defaultRetryDelay
	}

	if cfg.Chain == nil {
		cfg.Chain = &ChainConfig{}
	}
	if cfg.Chain.Mode == "" {
		cfg.Chain.Mode = ChainModeCLI
	}
	if cfg.Chain.Binary == "" {
		cfg.Chain.Binary = defaultBinary
	}
	if cfg.Chain.KeyringBackend == "" {
		cfg.Chain.KeyringBackend = defaultKeyringBackend
	}
	if cfg.Chain.GasAdjustment == "" {
		cfg.Chain.GasAdjustment = defaultGasAdjustment
	}
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = defaultChainTimeout
	}
	if cfg.Chain.RetryAttempts == 0 {
		cfg.Chain.RetryAttempts = defaultRetryAttempts
	}

	if cfg.Relay == nil {
		cfg.Relay = &RelayConfig{}
	}

	if cfg.Alerts == nil {
		cfg.Alerts = &AlertsConfig{}
	}
	if cfg.Alerts.Interval == 0 {
		cfg.Alerts.Interval = defaultAlertsInterval
	}
	if cfg.Alerts.StuckBroadcastAfter == 0 {
		cfg.Alerts.StuckBroadcastAfter = defaultStuckBroadcast
	}
}

func (cfg *Config) validate() error {
	switch cfg.Chain.Mode {
	case ChainModeCLI, ChainModeRPC:
		if cfg.DBConfig == nil {
			return fmt.Errorf("postgres section is required in %s mode: %w", cfg.Chain.Mode, ErrInvalidConfig)
		}
		if cfg.Chain.Node == "" {
			return fmt.Errorf("chain node is required in %s mode: %w", cfg.Chain.Mode, ErrInvalidConfig)
		}
		if cfg.Relay.SigningAccount == "" {
			return fmt.Errorf("relay signing_account is required in %s mode: %w", cfg.Chain.Mode, ErrInvalidConfig)
		}
	case ChainModeMock:
	default:
		return fmt.Errorf("unknown chain mode %q: %w", cfg.Chain.Mode, ErrInvalidConfig)
	}
	if cfg.Relay.Chain == "" {
		return fmt.Errorf("relay chain is required: %w", ErrInvalidConfig)
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max_attempts must be positive: %w", ErrInvalidConfig)
	}
	return nil
}
