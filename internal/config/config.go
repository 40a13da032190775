// Package config содержит логику чтения конфигурации сервиса заказов бинсу.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса заказов бинсу.
type Config struct {
	RunAddress   string   `env:"RUN_ADDRESS"`
	DatabaseURI  string   `env:"DATABASE_URI"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	OrderEventsTopic string `env:"ORDER_EVENTS_TOPIC" envDefault:"bingsu-order-events"`
	AuthSecret       string `env:"AUTH_SECRET"`

	MenuCodeTTL         time.Duration `env:"MENU_CODE_TTL" envDefault:"24h"`
	MenuCodeMaxUsage    int           `env:"MENU_CODE_MAX_USAGE" envDefault:"5"`
	CodeCleanupInterval time.Duration `env:"CODE_CLEANUP_INTERVAL" envDefault:"1h"`

	AdminLogin    string `env:"ADMIN_LOGIN"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envKafkaBrokers := cfg.KafkaBrokers

	var brokers string
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&brokers, "k", "", "comma separated kafka brokers for order events")

	flag.Parse()

	cfg.KafkaBrokers = splitList(brokers)

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if len(envKafkaBrokers) > 0 {
		cfg.KafkaBrokers = splitList(strings.Join(envKafkaBrokers, ","))
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MenuCodeTTL <= 0 {
		return fmt.Errorf("MENU_CODE_TTL must be positive, got %s", c.MenuCodeTTL)
	}
	if c.MenuCodeMaxUsage <= 0 {
		return fmt.Errorf("MENU_CODE_MAX_USAGE must be positive, got %d", c.MenuCodeMaxUsage)
	}
	if c.CodeCleanupInterval <= 0 {
		return fmt.Errorf("CODE_CLEANUP_INTERVAL must be positive, got %s", c.CodeCleanupInterval)
	}
	if (c.AdminLogin == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_LOGIN and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// splitList разбивает список через запятую, отбрасывая пустые элементы.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
