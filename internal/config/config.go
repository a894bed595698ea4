// Package config содержит логику чтения конфигурации клиента бронирования и тестового API.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/autoecole-booking/internal/gateway"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultPaymentDelay   = 2 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultEnv            = "development"
)

// Config содержит параметры клиента и тестового сервера.
type Config struct {
	APIBaseURL     string        `env:"API_BASE_URL"`
	SessionFile    string        `env:"SESSION_FILE"`
	RedisURL       string        `env:"REDIS_URL"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	PaymentDelay   time.Duration `env:"PAYMENT_DELAY"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	Env            string        `env:"APP_ENV"`
	LogFile        string        `env:"LOG_FILE"`
	RunAddress     string        `env:"RUN_ADDRESS"`
	JWTSecret      string        `env:"JWT_SECRET"`
}

// Parse считывает конфигурацию из .env, переменных окружения и флагов командной строки.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.APIBaseURL, "u", gateway.DefaultBaseURL, "booking API base URL")
	flag.StringVar(&cfg.SessionFile, "s", "", "session file path")
	flag.StringVar(&cfg.RedisURL, "redis", "", "redis URL for session storage")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "flow journal database URI")
	flag.DurationVar(&cfg.PaymentDelay, "delay", defaultPaymentDelay, "simulated payment processing delay")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", defaultRequestTimeout, "HTTP request timeout")
	flag.StringVar(&cfg.Env, "env", defaultEnv, "environment: development or production")
	flag.StringVar(&cfg.LogFile, "log", "", "log file path")
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for stub API server")
	flag.StringVar(&cfg.JWTSecret, "jwt", "", "stub API token signing key")

	flag.Parse()

	overrideString(&cfg.APIBaseURL, fromEnv.APIBaseURL)
	overrideString(&cfg.SessionFile, fromEnv.SessionFile)
	overrideString(&cfg.RedisURL, fromEnv.RedisURL)
	overrideString(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	overrideString(&cfg.Env, fromEnv.Env)
	overrideString(&cfg.LogFile, fromEnv.LogFile)
	overrideString(&cfg.RunAddress, fromEnv.RunAddress)
	overrideString(&cfg.JWTSecret, fromEnv.JWTSecret)
	// Нулевая длительность из окружения допустима, поэтому проверяется наличие переменной.
	if envSet("PAYMENT_DELAY") {
		cfg.PaymentDelay = fromEnv.PaymentDelay
	}
	if envSet("REQUEST_TIMEOUT") {
		cfg.RequestTimeout = fromEnv.RequestTimeout
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PaymentDelay < 0 {
		return nil, fmt.Errorf("payment delay must not be negative: %s", cfg.PaymentDelay)
	}
	cfg.APIBaseURL = gateway.NormalizeBaseURL(cfg.APIBaseURL)

	return cfg, nil
}

// loadDotEnv загружает файл окружения, если он есть. Уже заданные переменные не перезаписываются.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envSet(key string) bool {
	v, ok := os.LookupEnv(key)
	return ok && v != ""
}

func overrideString(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
