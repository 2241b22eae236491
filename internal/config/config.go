package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/blake2b"
)

type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Director   DirectorConfig   `toml:"director"`
	Pool       PoolConfig       `toml:"pool"`
	Customer   CustomerConfig   `toml:"customer"`
	Movement   MovementConfig   `toml:"movement"`
	Kitchen    KitchenConfig    `toml:"kitchen"`
	Layout     LayoutConfig     `toml:"layout"`
	Database   DatabaseConfig   `toml:"database"`
	Status     StatusConfig     `toml:"status"`
	Logging    LoggingConfig    `toml:"logging"`
}

type SimulationConfig struct {
	Name     string        `toml:"name"`
	TickRate time.Duration `toml:"tick_rate"`
	Strict   bool          `toml:"strict"` // panic on invalid seat handles instead of logging
}

type DirectorConfig struct {
	SpawnPeriod   time.Duration `toml:"spawn_period"`
	MaxConcurrent int           `toml:"max_concurrent"`
	Spawning      bool          `toml:"spawning"`
}

type PoolConfig struct {
	InitialSize int `toml:"initial_size"`
	MaxSize     int `toml:"max_size"` // 0 = grow without bound
}

type CustomerConfig struct {
	WaitForService        bool          `toml:"wait_for_service"`
	WaitForServiceTimeout time.Duration `toml:"wait_for_service_timeout"`
	ConsumeDuration       time.Duration `toml:"consume_duration"`
	SettleDuration        time.Duration `toml:"settle_duration"` // 0 skips the settle step
	RetryInterval         time.Duration `toml:"retry_interval"`
	RetryMaxInterval      time.Duration `toml:"retry_max_interval"`
	MaxMoveAttempts       int           `toml:"max_move_attempts"`
}

type MovementConfig struct {
	Speed          float64 `toml:"speed"` // floor units per second
	ArriveDistance float64 `toml:"arrive_distance"`
}

type KitchenConfig struct {
	Enabled           bool          `toml:"enabled"`
	ScriptsDir        string        `toml:"scripts_dir"`
	DefaultServeDelay time.Duration `toml:"default_serve_delay"`
}

type LayoutConfig struct {
	Path string `toml:"path"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables the visit ledger
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	FlushInterval   time.Duration `toml:"flush_interval"`
}

type StatusConfig struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Environment overrides, applied after the file.
const (
	EnvConfigPath  = "DINER_CONFIG"
	EnvDatabaseDSN = "DINER_DATABASE_DSN"
	EnvStatusAddr  = "DINER_STATUS_ADDR"
)

// Load reads a .env file when present, then the TOML file at path, then the
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes a TOML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config path, honouring DINER_CONFIG.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return "config/diner.toml"
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvDatabaseDSN); ok {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvStatusAddr); v != "" {
		c.Status.BindAddress = v
		c.Status.Enabled = true
	}
}

// Validate rejects configurations the simulation cannot start with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Simulation.TickRate > 0, "simulation.tick_rate must be positive")
	check(c.Director.SpawnPeriod > 0, "director.spawn_period must be positive")
	check(c.Director.MaxConcurrent > 0, "director.max_concurrent must be positive")
	check(c.Pool.InitialSize >= 0, "pool.initial_size must not be negative")
	check(c.Pool.MaxSize >= 0, "pool.max_size must not be negative")
	check(c.Pool.MaxSize == 0 || c.Pool.MaxSize >= c.Pool.InitialSize,
		"pool.max_size (%d) is below pool.initial_size (%d)", c.Pool.MaxSize, c.Pool.InitialSize)
	check(c.Customer.WaitForServiceTimeout >= 0, "customer.wait_for_service_timeout must not be negative")
	check(c.Customer.ConsumeDuration >= 0, "customer.consume_duration must not be negative")
	check(c.Customer.SettleDuration >= 0, "customer.settle_duration must not be negative")
	check(c.Customer.RetryInterval > 0, "customer.retry_interval must be positive")
	check(c.Customer.RetryMaxInterval >= c.Customer.RetryInterval,
		"customer.retry_max_interval must be at least customer.retry_interval")
	check(c.Customer.MaxMoveAttempts > 0, "customer.max_move_attempts must be positive")
	check(c.Movement.Speed > 0, "movement.speed must be positive")
	check(c.Movement.ArriveDistance >= 0, "movement.arrive_distance must not be negative")
	check(c.Kitchen.DefaultServeDelay >= 0, "kitchen.default_serve_delay must not be negative")
	check(c.Layout.Path != "", "layout.path is required")
	check(c.Database.DSN == "" || c.Database.FlushInterval > 0, "database.flush_interval must be positive")
	check(!c.Status.Enabled || c.Status.BindAddress != "", "status.bind_address is required when status is enabled")
	check(c.Logging.Format == "json" || c.Logging.Format == "console", "logging.format must be json or console")
	return errors.Join(errs...)
}

// Digest fingerprints the effective configuration so each recorded run can be
// tied to the settings that produced it. The database DSN is left out.
func (c *Config) Digest() string {
	redacted := *c
	redacted.Database.DSN = ""
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(redacted); err != nil {
		return ""
	}
	sum := blake2b.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:8])
}

func Defaults() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Name:     "diner",
			TickRate: 200 * time.Millisecond,
		},
		Director: DirectorConfig{
			SpawnPeriod:   5 * time.Second,
			MaxConcurrent: 5,
			Spawning:      true,
		},
		Pool: PoolConfig{
			InitialSize: 10,
		},
		Customer: CustomerConfig{
			WaitForService:        true,
			WaitForServiceTimeout: 5 * time.Second,
			ConsumeDuration:       5 * time.Second,
			SettleDuration:        500 * time.Millisecond,
			RetryInterval:         500 * time.Millisecond,
			RetryMaxInterval:      4 * time.Second,
			MaxMoveAttempts:       8,
		},
		Movement: MovementConfig{
			Speed:          3.5,
			ArriveDistance: 0.1,
		},
		Kitchen: KitchenConfig{
			Enabled:           true,
			ScriptsDir:        "scripts",
			DefaultServeDelay: 2 * time.Second,
		},
		Layout: LayoutConfig{
			Path: "data/yaml/seat_layout.yaml",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
			FlushInterval:   5 * time.Second,
		},
		Status: StatusConfig{
			BindAddress: "127.0.0.1:7070",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
