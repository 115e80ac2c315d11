// Package config loads loader settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"moviesetl/internal/storage"
)

// Settings is the full loader configuration. Field defaults match a local
// docker-compose Postgres and a db.sqlite file in the working directory.
type Settings struct {
	SourceKind   string `env:"SOURCE_KIND"   envDefault:"sqlite"`
	SQLitePath   string `env:"DB_PATH"       envDefault:"db.sqlite"`
	SourceDSN    string `env:"SOURCE_DSN"`
	SourceSchema string `env:"SOURCE_SCHEMA"`

	DestKind   string `env:"DEST_KIND"   envDefault:"postgres"`
	DBName     string `env:"DB_NAME"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST"     envDefault:"localhost"`
	DBPort     string `env:"DB_PORT"     envDefault:"5432"`
	DBOptions  string `env:"DB_OPTIONS"`
	DestDSN    string `env:"DEST_DSN"`
	DestSchema string `env:"DEST_SCHEMA" envDefault:"content"`

	PageSize int `env:"PAGE_SIZE" envDefault:"4"`

	JobName        string `env:"JOB_NAME"        envDefault:"movies_etl"`
	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"none"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL" envDefault:"http://localhost:9091"`
	MetricsTags    string `env:"METRICS_TAGS"`
}

// LoadSettings loads dotenvPath into the process environment when the file
// exists (variables already set win), then parses Settings.
func LoadSettings(dotenvPath string) (*Settings, error) {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				log.Printf("config: error loading %s: %v", dotenvPath, err)
			}
		}
	}

	cfg := Settings{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// ParseSettings parses Settings from environ instead of the process
// environment.
func ParseSettings(environ map[string]string) (*Settings, error) {
	cfg := Settings{}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (s *Settings) Validate() error {
	if s.PageSize <= 0 {
		return fmt.Errorf("config: PAGE_SIZE must be positive, got %d", s.PageSize)
	}
	if strings.TrimSpace(s.SourceKind) == "" {
		return fmt.Errorf("config: SOURCE_KIND is required")
	}
	if strings.TrimSpace(s.DestKind) == "" {
		return fmt.Errorf("config: DEST_KIND is required")
	}
	switch s.MetricsBackend {
	case "", "none", "datadog", "pushgateway":
	default:
		return fmt.Errorf("config: unknown METRICS_BACKEND %q", s.MetricsBackend)
	}
	if _, err := s.sourceDSN(); err != nil {
		return err
	}
	if _, err := s.destinationDSN(); err != nil {
		return err
	}
	return nil
}

// SourceConfig returns the storage config for the source store.
func (s *Settings) SourceConfig() (storage.Config, error) {
	dsn, err := s.sourceDSN()
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Kind: s.SourceKind, DSN: dsn, Schema: s.SourceSchema}, nil
}

// DestinationConfig returns the storage config for the destination store.
func (s *Settings) DestinationConfig() (storage.Config, error) {
	dsn, err := s.destinationDSN()
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Kind: s.DestKind, DSN: dsn, Schema: s.DestSchema}, nil
}

func (s *Settings) sourceDSN() (string, error) {
	if s.SourceDSN != "" {
		return s.SourceDSN, nil
	}
	if s.SourceKind == "sqlite" && s.SQLitePath != "" {
		return "file:" + s.SQLitePath, nil
	}
	return "", fmt.Errorf("config: SOURCE_DSN is required for SOURCE_KIND=%s", s.SourceKind)
}

func (s *Settings) destinationDSN() (string, error) {
	if s.DestDSN != "" {
		return s.DestDSN, nil
	}
	if s.DestKind == "postgres" {
		if s.DBName == "" {
			return "", fmt.Errorf("config: DB_NAME or DEST_DSN is required for DEST_KIND=postgres")
		}
		return s.PostgresDSN(), nil
	}
	return "", fmt.Errorf("config: DEST_DSN is required for DEST_KIND=%s", s.DestKind)
}

// PostgresDSN builds a postgres:// URL from the DB_* settings. DB_OPTIONS is
// passed as the "options" startup parameter, e.g. "-c search_path=content".
func (s *Settings) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(s.DBHost, s.DBPort),
		Path:   "/" + s.DBName,
	}
	if s.DBUser != "" {
		if s.DBPassword != "" {
			u.User = url.UserPassword(s.DBUser, s.DBPassword)
		} else {
			u.User = url.User(s.DBUser)
		}
	}
	if s.DBOptions != "" {
		u.RawQuery = url.Values{"options": {s.DBOptions}}.Encode()
	}
	return u.String()
}
