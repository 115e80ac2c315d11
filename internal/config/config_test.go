package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSettings_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseSettings(map[string]string{"DB_NAME": "movies_database"})
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}

	if cfg.SourceKind != "sqlite" || cfg.SQLitePath != "db.sqlite" || cfg.DestKind != "postgres" {
		t.Fatalf("unexpected kinds: %+v", cfg)
	}
	if cfg.DBHost != "localhost" || cfg.DBPort != "5432" || cfg.DestSchema != "content" {
		t.Fatalf("unexpected postgres defaults: %+v", cfg)
	}
	if cfg.PageSize != 4 || cfg.MetricsBackend != "none" || cfg.JobName != "movies_etl" {
		t.Fatalf("unexpected runtime defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	src, err := cfg.SourceConfig()
	if err != nil {
		t.Fatalf("SourceConfig: %v", err)
	}
	if src.Kind != "sqlite" || src.DSN != "file:db.sqlite" {
		t.Fatalf("unexpected source config: %+v", src)
	}

	dst, err := cfg.DestinationConfig()
	if err != nil {
		t.Fatalf("DestinationConfig: %v", err)
	}
	if dst.Kind != "postgres" || dst.Schema != "content" || !strings.HasPrefix(dst.DSN, "postgres://localhost:5432/movies_database") {
		t.Fatalf("unexpected destination config: %+v", dst)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	cfg, err := ParseSettings(map[string]string{
		"DB_NAME":     "movies_database",
		"DB_USER":     "app",
		"DB_PASSWORD": "p@ss word",
		"DB_HOST":     "db",
		"DB_PORT":     "6432",
		"DB_OPTIONS":  "-c search_path=content",
	})
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}

	u, err := url.Parse(cfg.PostgresDSN())
	if err != nil {
		t.Fatalf("PostgresDSN is not a URL: %v", err)
	}
	if u.Host != "db:6432" || u.Path != "/movies_database" {
		t.Fatalf("host/path=%s%s", u.Host, u.Path)
	}
	if pw, _ := u.User.Password(); u.User.Username() != "app" || pw != "p@ss word" {
		t.Fatalf("credentials not round-tripped: %v", u.User)
	}
	if got := u.Query().Get("options"); got != "-c search_path=content" {
		t.Fatalf("options=%q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "ok_dsn_overrides", env: map[string]string{"DEST_DSN": "postgres://x/y"}},
		{name: "zero_page_size", env: map[string]string{"DB_NAME": "m", "PAGE_SIZE": "0"}, wantErr: "PAGE_SIZE"},
		{name: "missing_db_name", env: map[string]string{}, wantErr: "DB_NAME"},
		{name: "empty_source_kind", env: map[string]string{"DB_NAME": "m", "SOURCE_KIND": " "}, wantErr: "SOURCE_KIND"},
		{name: "unknown_metrics", env: map[string]string{"DB_NAME": "m", "METRICS_BACKEND": "statsd"}, wantErr: "METRICS_BACKEND"},
		{name: "postgres_source_needs_dsn", env: map[string]string{"DB_NAME": "m", "SOURCE_KIND": "postgres"}, wantErr: "SOURCE_DSN"},
		{name: "mssql_dest_needs_dsn", env: map[string]string{"DEST_KIND": "mssql"}, wantErr: "DEST_DSN"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := ParseSettings(tt.env)
			if err != nil {
				t.Fatalf("ParseSettings: %v", err)
			}
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate err=%v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseSettings_BadInt(t *testing.T) {
	t.Parallel()

	if _, err := ParseSettings(map[string]string{"PAGE_SIZE": "four"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadSettings_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DB_NAME=from_dotenv\nDB_USER=app\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	// An already-set variable wins over .env. t.Setenv also restores DB_NAME
	// and DB_USER after the test, including the value godotenv sets.
	t.Setenv("DB_NAME", "from_env")
	t.Setenv("DB_USER", "")
	os.Unsetenv("DB_USER")

	cfg, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if cfg.DBName != "from_env" {
		t.Fatalf("DB_NAME=%q want from_env", cfg.DBName)
	}
	if cfg.DBUser != "app" {
		t.Fatalf("DB_USER=%q want app (from .env)", cfg.DBUser)
	}

	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
