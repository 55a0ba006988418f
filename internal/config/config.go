package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gogazub/appflow/internal/util"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Workers   WorkersConfig   `yaml:"workers"`
	Backoff   BackoffConfig   `yaml:"backoff"`
	Polling   PollingConfig   `yaml:"polling"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type WorkersConfig struct {
	// Count: число воркеров загрузки деталей сервисов.
	Count      int `yaml:"count"`
	MaxRetries int `yaml:"max_retries"`
}

type BackoffConfig struct {
	Base        float64       `yaml:"base"`
	Unit        time.Duration `yaml:"unit"`
	MaxAttempts int           `yaml:"max_attempts"`
	// Dir: каталог badger. Если пусто, записи живут в памяти.
	Dir string `yaml:"dir"`
}

type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PollingConfig struct {
	Cgn          PollConfig `yaml:"cgn"`
	Eyca         PollConfig `yaml:"eyca"`
	BonusVacanze PollConfig `yaml:"bonus_vacanze"`
}

type LifecycleConfig struct {
	BackgroundTimeout time.Duration `yaml:"background_timeout"`
	ReidentifyRoutes  []string      `yaml:"reidentify_routes"`
}

type TelemetryConfig struct {
	// Sink: "log", "kafka" или "nop".
	Sink         string   `yaml:"sink"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Default: значения по умолчанию, совпадающие с мобильным клиентом.
func Default() Config {
	poll := PollConfig{Interval: time.Second, Timeout: 10 * time.Second}
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Workers: WorkersConfig{Count: 5},
		Backoff: BackoffConfig{Base: 2, Unit: time.Second, MaxAttempts: 4},
		Polling: PollingConfig{Cgn: poll, Eyca: poll, BonusVacanze: poll},
		Lifecycle: LifecycleConfig{
			BackgroundTimeout: 30 * time.Second,
			ReidentifyRoutes:  []string{"WALLET_ADD_CARD"},
		},
		Telemetry: TelemetryConfig{Sink: "log", KafkaTopic: "appflow-telemetry"},
		LogLevel:  "info",
	}
}

// Load собирает конфиг: умолчания, затем YAML-файл (если path не пуст и файл
// существует), затем .env и переменные окружения APPFLOW_*.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// .env не обязателен
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = util.GetString("APPFLOW_ADDR", cfg.Server.Addr)
	cfg.Server.AllowedOrigins = util.GetCSV("APPFLOW_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Backend.BaseURL = util.GetString("APPFLOW_BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Token = util.GetString("APPFLOW_BACKEND_TOKEN", cfg.Backend.Token)
	cfg.Backend.Timeout = util.GetDuration("APPFLOW_BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Workers.Count = util.GetInt("APPFLOW_WORKERS", cfg.Workers.Count)
	cfg.Workers.MaxRetries = util.GetInt("APPFLOW_MAX_RETRIES", cfg.Workers.MaxRetries)
	cfg.Backoff.MaxAttempts = util.GetInt("APPFLOW_BACKOFF_MAX_ATTEMPTS", cfg.Backoff.MaxAttempts)
	cfg.Backoff.Unit = util.GetDuration("APPFLOW_BACKOFF_UNIT", cfg.Backoff.Unit)
	cfg.Backoff.Dir = util.GetString("APPFLOW_BACKOFF_DIR", cfg.Backoff.Dir)
	cfg.Lifecycle.BackgroundTimeout = util.GetDuration("APPFLOW_BACKGROUND_TIMEOUT", cfg.Lifecycle.BackgroundTimeout)
	cfg.Lifecycle.ReidentifyRoutes = util.GetCSV("APPFLOW_REIDENTIFY_ROUTES", cfg.Lifecycle.ReidentifyRoutes)
	cfg.Telemetry.Sink = util.GetString("APPFLOW_TELEMETRY_SINK", cfg.Telemetry.Sink)
	cfg.Telemetry.KafkaBrokers = util.GetCSV("APPFLOW_KAFKA_BROKERS", cfg.Telemetry.KafkaBrokers)
	cfg.Telemetry.KafkaTopic = util.GetString("APPFLOW_KAFKA_TOPIC", cfg.Telemetry.KafkaTopic)
	cfg.LogLevel = util.GetString("APPFLOW_LOG_LEVEL", cfg.LogLevel)
}

func (c Config) Validate() error {
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Workers.MaxRetries < 0 {
		return fmt.Errorf("workers.max_retries must not be negative, got %d", c.Workers.MaxRetries)
	}
	if c.Backoff.Base < 1 || c.Backoff.MaxAttempts <= 0 || c.Backoff.Unit <= 0 {
		return errors.New("backoff: base >= 1, max_attempts > 0 and unit > 0 are required")
	}
	for name, p := range map[string]PollConfig{
		"cgn": c.Polling.Cgn, "eyca": c.Polling.Eyca, "bonus_vacanze": c.Polling.BonusVacanze,
	} {
		if p.Interval <= 0 || p.Timeout <= 0 {
			return fmt.Errorf("polling.%s: interval and timeout must be positive", name)
		}
	}
	if c.Lifecycle.BackgroundTimeout <= 0 {
		return errors.New("lifecycle.background_timeout must be positive")
	}
	switch c.Telemetry.Sink {
	case "log", "nop":
	case "kafka":
		if len(c.Telemetry.KafkaBrokers) == 0 || c.Telemetry.KafkaTopic == "" {
			return errors.New("telemetry: kafka sink needs brokers and topic")
		}
	default:
		return fmt.Errorf("telemetry.sink: unknown value %q", c.Telemetry.Sink)
	}
	return nil
}
