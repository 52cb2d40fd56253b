// Package config loads and validates the service configuration: struct-tag
// defaults, optional YAML overrides, then validation of the merged result.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"flowforge/executors"
	"flowforge/store/postgres"
)

type Config struct {
	Addr string `yaml:"addr" default:":8080" validate:"hostname_port"`

	// EncryptionKey is the hex-encoded 32-byte key for stored credentials.
	EncryptionKey string `yaml:"encryption_key" validate:"required"`

	// Postgres is optional; with an empty connection string the service runs
	// on the in-memory store.
	Postgres  postgres.Config  `yaml:"postgres"`
	Executors executors.Config `yaml:"executors"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// Load builds the configuration: defaults first, then the YAML file when a
// path is given, then validation.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("error unmarshalling config: %w", err)
		}
	}

	if key := os.Getenv("FLOWFORGE_ENCRYPTION_KEY"); key != "" {
		cfg.EncryptionKey = key
	}
	if dsn := os.Getenv("FLOWFORGE_DATABASE_URL"); dsn != "" {
		cfg.Postgres.ConnectionString = dsn
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldErr := range validationErrors {
			messages = append(messages, fmt.Sprintf(
				"field '%s' failed validation (rule: %s)", fieldErr.Field(), fieldErr.Tag()))
		}
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return fmt.Errorf("config validation failed: %w", err)
}

func registerCustomValidators() {
	// hostname_port validates "host:port" with a numeric port. An empty host
	// (":8080") is allowed for listen addresses.
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure.
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// dsn accepts URL-style (postgres://...) or traditional (user@host/db)
	// connection strings; empty selects the in-memory store.
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}
