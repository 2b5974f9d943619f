package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  sqlite:
    path: /tmp/refstack.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultResultsPerPage, cfg.API.ResultsPerPage)
	assert.Equal(t, DefaultInputDateFormat, cfg.API.InputDateFormat)
	assert.Equal(t, DefaultSessionTTL, cfg.Auth.SessionTTL)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9000"
  cors_origins:
    - https://refstack.example.com
  rate_limit:
    enabled: true
    requests_per_minute: 120
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5432
    user: refstack
    password: secret
    database: refstack
    ssl_mode: require
auth:
  session_ttl: 24h
api:
  results_per_page: 50
  input_date_format: "2006-01-02"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t,
		[]string{"https://refstack.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.Server.RateLimit.RequestsPerMinute)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 50, cfg.API.ResultsPerPage)
	assert.Equal(t, "2006-01-02", cfg.API.InputDateFormat)
	assert.Equal(t, 24*60*60, int(cfg.SessionTTL().Seconds()))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver: "sqlite",
				SQLite: SQLiteDatabaseConfig{Path: ":memory:"},
			},
			Auth: AuthConfig{SessionTTL: DefaultSessionTTL},
			API:  APIConfig{ResultsPerPage: DefaultResultsPerPage},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid sqlite config",
			mutate: func(*Config) {},
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Database.SQLite.Path = ""
			},
			wantErr: "sqlite.path is required",
		},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
			},
			wantErr: "postgres.host is required",
		},
		{
			name: "non-positive page size",
			mutate: func(c *Config) {
				c.API.ResultsPerPage = 0
			},
			wantErr: "results_per_page must be positive",
		},
		{
			name: "bad session ttl",
			mutate: func(c *Config) {
				c.Auth.SessionTTL = "soon"
			},
			wantErr: "session_ttl",
		},
		{
			name: "rate limit enabled without limit",
			mutate: func(c *Config) {
				c.Server.RateLimit.Enabled = true
			},
			wantErr: "requests_per_minute must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
