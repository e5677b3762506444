package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"derivatio-energy/internal/engine"
	masterdata "derivatio-energy/internal/masterdata/domain"
	simapp "derivatio-energy/internal/simulation/application"
)

// Config is the service configuration. File values are read first, then environment variables override them.
type Config struct {
	DatabaseURL            string          `yaml:"database_url"`
	HTTPAddr               string          `yaml:"http_addr"`
	JWTSecret              string          `yaml:"-"`
	LogLevel               string          `yaml:"log_level"`
	Timezone               string          `yaml:"timezone"`
	InsufficientDataPolicy string          `yaml:"insufficient_data_policy"`
	SimulationWorkers      int             `yaml:"simulation_workers"`
	WebhookURL             string          `yaml:"webhook_url"`
	Redis                  RedisConfig     `yaml:"redis"`
	Scheduler              SchedulerConfig `yaml:"scheduler"`
}

// RedisConfig configures the tariff cache. An empty Addr disables it.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TariffTTL time.Duration `yaml:"tariff_ttl"`
}

// SchedulerConfig lists the properties simulated every day.
type SchedulerConfig struct {
	DailyAt string      `yaml:"daily_at"`
	Jobs    []JobConfig `yaml:"jobs"`
}

// JobConfig is one scheduled property.
type JobConfig struct {
	PropertyID             string            `yaml:"property_id"`
	TariffName             string            `yaml:"tariff_name"`
	Fleet                  *masterdata.Fleet `yaml:"fleet"`
	AllowSyntheticBaseLoad bool              `yaml:"allow_synthetic_base_load"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPAddr:               ":8080",
		LogLevel:               "info",
		Timezone:               "Europe/Stockholm",
		InsufficientDataPolicy: string(engine.PolicyFail),
		SimulationWorkers:      4,
		Redis:                  RedisConfig{TariffTTL: 10 * time.Minute},
		Scheduler:              SchedulerConfig{DailyAt: "03:00"},
	}
}

// Load reads CONFIG_FILE (when set) and the environment.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DatabaseURL, getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")))
	setString(&c.HTTPAddr, os.Getenv("HTTP_ADDR"))
	setString(&c.JWTSecret, getenvDefault("AUTH_JWT_SECRET", os.Getenv("JWT_SECRET")))
	setString(&c.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&c.Timezone, os.Getenv("TARIFF_TIMEZONE"))
	setString(&c.InsufficientDataPolicy, os.Getenv("INSUFFICIENT_DATA_POLICY"))
	setString(&c.WebhookURL, os.Getenv("SIMULATION_WEBHOOK_URL"))
	setString(&c.Redis.Addr, os.Getenv("REDIS_ADDR"))
	setString(&c.Redis.Password, os.Getenv("REDIS_PASSWORD"))
	setString(&c.Scheduler.DailyAt, os.Getenv("SIMULATION_DAILY_AT"))

	if value := os.Getenv("SIMULATION_WORKERS"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: SIMULATION_WORKERS must be a positive integer, got %q", value)
		}
		c.SimulationWorkers = n
	}
	if value := os.Getenv("TARIFF_CACHE_TTL"); value != "" {
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: TARIFF_CACHE_TTL: %w", err)
		}
		c.Redis.TariffTTL = ttl
	}
	return nil
}

// EngineOptions resolves the timezone and insufficient data policy.
func (c Config) EngineOptions() (engine.Options, error) {
	loc, err := engine.LoadLocation(c.Timezone)
	if err != nil {
		return engine.Options{}, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	policy, err := engine.ParsePolicy(c.InsufficientDataPolicy)
	if err != nil {
		return engine.Options{}, fmt.Errorf("config: %w", err)
	}
	return engine.Options{Location: loc, InsufficientData: policy}, nil
}

// ValidateServe checks what the HTTP server needs.
func (c Config) ValidateServe() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if _, err := time.Parse("15:04", c.Scheduler.DailyAt); len(c.Scheduler.Jobs) > 0 && err != nil {
		return fmt.Errorf("config: scheduler.daily_at %q: %w", c.Scheduler.DailyAt, err)
	}
	_, err := c.EngineOptions()
	return err
}

// Jobs converts the scheduler section into simulation jobs, skipping entries without a property.
func (c Config) Jobs() []simapp.Job {
	jobs := make([]simapp.Job, 0, len(c.Scheduler.Jobs))
	for _, j := range c.Scheduler.Jobs {
		id := strings.TrimSpace(j.PropertyID)
		if id == "" {
			continue
		}
		jobs = append(jobs, simapp.Job{
			PropertyID:             id,
			TariffName:             j.TariffName,
			Fleet:                  j.Fleet,
			AllowSyntheticBaseLoad: j.AllowSyntheticBaseLoad,
		})
	}
	return jobs
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
