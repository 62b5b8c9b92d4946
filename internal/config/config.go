// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	WompiBaseURL         string `env:"WOMPI_BASE_URL"`
	WompiPublicKey       string `env:"WOMPI_PUB_KEY"`
	WompiIntegritySecret string `env:"WOMPI_INTEGRITY_SECRET"`
	WompiEventsSecret    string `env:"WOMPI_EVENTS_SECRET"`

	MailAPIAddress string `env:"MAIL_API_ADDRESS"`
	MailAPIToken   string `env:"MAIL_API_TOKEN"`

	// CashOnDeliveryCity — город, для которого доступна оплата при получении.
	CashOnDeliveryCity string `env:"COD_CITY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envWompiBaseURL := cfg.WompiBaseURL
	envMailAddress := cfg.MailAPIAddress
	envCODCity := cfg.CashOnDeliveryCity

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.WompiBaseURL, "w", "https://sandbox.wompi.co/v1", "payment gateway base URL")
	flag.StringVar(&cfg.MailAPIAddress, "m", "", "mail API address")
	flag.StringVar(&cfg.CashOnDeliveryCity, "c", "medellin", "city allowed for cash on delivery")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envWompiBaseURL != "" {
		cfg.WompiBaseURL = envWompiBaseURL
	}
	if envMailAddress != "" {
		cfg.MailAPIAddress = envMailAddress
	}
	if envCODCity != "" {
		cfg.CashOnDeliveryCity = envCODCity
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "commerce-secret"
	}

	return cfg, nil
}
