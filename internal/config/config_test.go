package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/deepexport/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfig() *Config {
	return &Config{
		Repository: RepositoryConfig{
			Name: "docbase", User: "dmadmin", Password: "secret", DSN: "repo.db",
		},
		Source: "/Temp",
		Target: "/srv/export",
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "deepexport.yaml", `
repository:
  name: docbase
  user: dmadmin
  password: secret
  driver: postgres
  dsn: postgres://localhost/repo?sslmode=disable
  max_queries_per_second: 50
source: /Temp/
target: /srv/export
versions: true
page_size: 1000
log:
  level: debug
  format: json
metrics_file: /var/lib/node_exporter/deepexport.prom
s3:
  endpoint: localhost:9000
  access_key: minio
  secret_key: minio123
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "docbase", cfg.Repository.Name)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, 50.0, cfg.Repository.MaxQueriesPerSecond)
	assert.Equal(t, "/Temp/", cfg.Source)
	assert.True(t, cfg.Versions)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/lib/node_exporter/deepexport.prom", cfg.MetricsFile)
	assert.Equal(t, "localhost:9000", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.Enabled())
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "deepexport.jsonc", `{
  // repository connection
  "repository": {"name": "docbase", "user": "dmadmin", "password": "secret", "dsn": "repo.db"},
  "source": "/Temp",
  "target": "/srv/export", /* trailing comment */
  "versions": true,
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dmadmin", cfg.Repository.User)
	assert.Equal(t, "/srv/export", cfg.Target)
	assert.True(t, cfg.Versions)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "repository: [unclosed"))
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.json", `{"source": }`))
		assert.ErrorIs(t, err, model.ErrConfig)
	})
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	cfg, err = LoadOptional(writeFile(t, DefaultPath, "source: /Temp\n"))
	require.NoError(t, err)
	assert.Equal(t, "/Temp", cfg.Source)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DEEPEXPORT_REPOSITORY_NAME", "prod")
	t.Setenv("DEEPEXPORT_REPOSITORY_USER", "exporter")
	t.Setenv("DEEPEXPORT_REPOSITORY_PASSWORD", "s3cr3t")
	t.Setenv("DEEPEXPORT_REPOSITORY_DRIVER", "postgres")
	t.Setenv("DEEPEXPORT_REPOSITORY_DSN", "postgres://db/repo")
	t.Setenv("DEEPEXPORT_SOURCE", "/Finance")
	t.Setenv("DEEPEXPORT_TARGET", "/mnt/out")
	t.Setenv("DEEPEXPORT_VERSIONS", "true")
	t.Setenv("DEEPEXPORT_PAGE_SIZE", "not-a-number")

	cfg := validConfig()
	cfg.PageSize = 250
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "prod", cfg.Repository.Name)
	assert.Equal(t, "exporter", cfg.Repository.User)
	assert.Equal(t, "s3cr3t", cfg.Repository.Password)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "postgres://db/repo", cfg.Repository.DSN)
	assert.Equal(t, "/Finance", cfg.Source)
	assert.Equal(t, "/mnt/out", cfg.Target)
	assert.True(t, cfg.Versions)
	assert.Equal(t, 250, cfg.PageSize, "malformed values are ignored")
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Source: "/Temp/", Target: "/srv/export//"}
	ApplyDefaults(cfg)

	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, 4000, cfg.PageSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/Temp", cfg.Source)
	assert.Equal(t, "/srv/export", cfg.Target)
}

func TestTrimTrailingSlash(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/Temp", want: "/Temp"},
		{in: "/Temp/", want: "/Temp"},
		{in: `C:\export\`, want: `C:\export`},
		{in: "/", want: "/"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimTrailingSlash(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing user and target",
			mutate:  func(c *Config) { c.Repository.User = ""; c.Target = " " },
			wantErr: "missing settings: repository.user, target",
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.Repository.Password = "" },
			wantErr: "repository.password",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Repository.Driver = "oracle" },
			wantErr: "unsupported repository driver",
		},
		{
			name:    "negative page size",
			mutate:  func(c *Config) { c.PageSize = -1 },
			wantErr: "page_size",
		},
		{
			name:    "relative source",
			mutate:  func(c *Config) { c.Source = "Temp" },
			wantErr: "absolute repository path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			ApplyDefaults(cfg)
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCount(t *testing.T) {
	cfg := validConfig()
	cfg.Target = ""
	ApplyDefaults(cfg)

	assert.NoError(t, ValidateCount(cfg))
	assert.ErrorIs(t, Validate(cfg), model.ErrConfig)
}
