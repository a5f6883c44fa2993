package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env     string        `yaml:"env" env:"PORTAL_ENV" env-default:"local"`
	Storage StorageConfig `yaml:"storage"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tokens  TokensConfig  `yaml:"tokens"`
	Sweep   SweepConfig   `yaml:"sweep"`
}

type StorageConfig struct {
	Driver          string `yaml:"driver" env:"PORTAL_STORAGE_DRIVER" env-default:"sqlite"`
	Path            string `yaml:"path" env:"PORTAL_STORAGE_PATH" env-default:"./storage/portal.db"`
	DSN             string `yaml:"dsn" env:"PORTAL_DATABASE_URL"`
	MigrationsTable string `yaml:"migrations_table" env-default:"schema_migrations"`
}

type GRPCConfig struct {
	Port         int           `yaml:"port" env:"PORTAL_GRPC_PORT" env-default:"44044"`
	Timeout      time.Duration `yaml:"timeout" env-default:"5s"`
	TrustedPeers []string      `yaml:"trusted_peers" env:"PORTAL_TRUSTED_PEERS" env-separator:","`
	// ServiceToken authenticates the backends allowed to issue sessions and sweep.
	ServiceToken string        `yaml:"service_token" env:"PORTAL_SERVICE_TOKEN"`
}

type MetricsConfig struct {
	// Empty disables the metrics listener.
	Addr string `yaml:"addr" env:"PORTAL_METRICS_ADDR"`
}

type TokensConfig struct {
	Secret     string        `yaml:"secret" env:"PORTAL_TOKEN_SECRET" env-required:"true"`
	AccessTTL  time.Duration `yaml:"access_ttl" env-default:"168h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env-default:"720h"`
	Issuer     string        `yaml:"issuer" env-default:"portal"`
	Audience   string        `yaml:"audience" env-default:"customer-portal"`
}

type SweepConfig struct {
	// Zero leaves sweeping to an external scheduler.
	Interval time.Duration `yaml:"interval" env:"PORTAL_SWEEP_INTERVAL" env-default:"0s"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

// MustLoadPath reads the YAML file at configPath and applies env overrides.
func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	if err := cfg.validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	if !flag.Parsed() {
		flag.StringVar(&res, "config", "", "path to config file")
		flag.Parse()
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
