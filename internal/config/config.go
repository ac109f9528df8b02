package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"vaulttrust/internal/logger"
	"vaulttrust/internal/storage"
	"vaulttrust/internal/tracker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 3001
	DefaultDatabaseDriver  = storage.DriverSqlite
	DefaultDatabaseURL     = "vaulttrust.db"
	DefaultSepoliaRPCURL   = "https://ethereum-sepolia-rpc.publicnode.com"
	DefaultLogLevel        = "info"
	DefaultLogFile         = "vaulttrust.log"
	DefaultLogErrorFile    = "vaulttrust.error.log"
	DefaultAMQPExchange    = "vaulttrust.audit"
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Port uint `yaml:"port" envconfig:"PORT"`

	DatabaseDriver string `yaml:"databaseDriver" envconfig:"DATABASE_DRIVER"`
	DatabaseURL    string `yaml:"databaseUrl"    envconfig:"DATABASE_URL"`

	SepoliaRPCURL          string        `yaml:"sepoliaRpcUrl"          envconfig:"SEPOLIA_RPC_URL"`
	ProofOfReservesAddress string        `yaml:"proofOfReservesAddress" envconfig:"PROOF_OF_RESERVES_ADDRESS"`
	TrackerStartBlock      uint64        `yaml:"trackerStartBlock"      envconfig:"TRACKER_START_BLOCK"`
	TrackerPollInterval    time.Duration `yaml:"trackerPollInterval"    envconfig:"TRACKER_POLL_INTERVAL"`
	TrackerBlockWindowSize uint64        `yaml:"trackerBlockWindow"     envconfig:"TRACKER_BLOCK_WINDOW"`

	LogLevel     string `yaml:"logLevel"     envconfig:"LOG_LEVEL"`
	LogFile      string `yaml:"logFile"      envconfig:"LOG_FILE"`
	LogErrorFile string `yaml:"logErrorFile" envconfig:"LOG_ERROR_FILE"`
	LogConsole   bool   `yaml:"logConsole"   envconfig:"LOG_CONSOLE"`

	AMQPURL      string `yaml:"amqpUrl"      envconfig:"AMQP_URL"`
	AMQPExchange string `yaml:"amqpExchange" envconfig:"AMQP_EXCHANGE"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

func Default() *Config {
	return &Config{
		Port:                   DefaultPort,
		DatabaseDriver:         DefaultDatabaseDriver,
		DatabaseURL:            DefaultDatabaseURL,
		SepoliaRPCURL:          DefaultSepoliaRPCURL,
		TrackerPollInterval:    tracker.DefaultPollInterval,
		TrackerBlockWindowSize: tracker.DefaultBlockWindowSize,
		LogLevel:               DefaultLogLevel,
		LogFile:                DefaultLogFile,
		LogErrorFile:           DefaultLogErrorFile,
		LogConsole:             true,
		AMQPExchange:           DefaultAMQPExchange,
		ShutdownTimeout:        DefaultShutdownTimeout,
	}
}

// Load layers defaults, the optional YAML file, a .env file and the process
// environment, in that order.
func Load(configFile string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, envFile := range envFiles {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every command needs. Tracker settings are
// checked separately since the api command runs without them.
func (c *Config) Validate() error {
	if c.DatabaseDriver != storage.DriverPostgres && c.DatabaseDriver != storage.DriverSqlite {
		return fmt.Errorf("invalid databaseDriver: %q (must be 'postgres' or 'sqlite')", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("databaseUrl is required")
	}
	if c.Port == 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdownTimeout must be positive")
	}
	return nil
}

func (c *Config) ValidateTracker() error {
	if c.SepoliaRPCURL == "" {
		return errors.New("sepoliaRpcUrl is required")
	}
	if !common.IsHexAddress(c.ProofOfReservesAddress) {
		return fmt.Errorf("invalid proofOfReservesAddress: %q", c.ProofOfReservesAddress)
	}
	if c.TrackerPollInterval <= 0 {
		return errors.New("trackerPollInterval must be positive")
	}
	if c.TrackerBlockWindowSize == 0 {
		return errors.New("trackerBlockWindow must be positive")
	}
	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Logger() logger.Configuration {
	return logger.Configuration{
		Service:   "vaulttrust",
		LogFile:   c.LogFile,
		ErrorFile: c.LogErrorFile,
		Level:     c.LogLevel,
		Console:   c.LogConsole,
	}
}

func (c *Config) Tracker() tracker.Config {
	return tracker.Config{
		ContractAddress: common.HexToAddress(c.ProofOfReservesAddress),
		StartBlock:      c.TrackerStartBlock,
		PollInterval:    c.TrackerPollInterval,
		BlockWindowSize: c.TrackerBlockWindowSize,
	}
}
