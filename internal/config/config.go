// Package config loads the deepexport settings.
//
// Settings come from three layers, later layers winning:
//  1. a YAML file (deepexport.yaml), or JSON with comments when the file
//     name ends in .json or .jsonc
//  2. DEEPEXPORT_* environment variables
//  3. command line flags (applied by the cli package)
//
// ApplyDefaults and Validate run once all layers are merged.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/pager"
	"github.com/shinji-kodama/deepexport/internal/repository/s3store"
	"github.com/shinji-kodama/deepexport/internal/repository/sqlrepo"
)

// DefaultPath is the settings file read when --config is not given.
const DefaultPath = "deepexport.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEEPEXPORT_"

// Config holds every setting of an export run.
type Config struct {
	Repository RepositoryConfig `yaml:"repository" json:"repository"`

	// Source is the repository folder path to export, e.g. "/Temp".
	Source string `yaml:"source" json:"source"`

	// Target is the local directory the tree is mirrored into. It must
	// already exist.
	Target string `yaml:"target" json:"target"`

	// Versions exports every version of each document.
	Versions bool `yaml:"versions" json:"versions"`

	// PageSize bounds the rows read per children query.
	PageSize int `yaml:"page_size" json:"page_size"`

	Log LogConfig `yaml:"log" json:"log"`

	// MetricsFile, when set, receives the run metrics in the Prometheus
	// text format.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`

	// S3 configures the object store for offloaded content.
	S3 s3store.Config `yaml:"s3" json:"s3"`
}

// RepositoryConfig identifies the repository and how to reach it.
type RepositoryConfig struct {
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`

	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`

	MaxQueriesPerSecond float64 `yaml:"max_queries_per_second" json:"max_queries_per_second"`
}

// LogConfig controls the run log format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load reads the settings file at path. Defaults are not applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read settings file %q: %w", model.ErrConfig, path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse settings file %q: %w", model.ErrConfig, path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse settings file %q: %w", model.ErrConfig, path, err)
		}
	}
	return &cfg, nil
}

// LoadOptional reads path when it exists and returns an empty Config
// otherwise. Use it for the default settings file, which may be absent
// when everything comes from the environment or flags.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return Load(path)
}

// ApplyEnvOverrides overwrites settings with non-empty DEEPEXPORT_*
// environment variables. Malformed numeric or boolean values are
// ignored.
func ApplyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}

	str("REPOSITORY_NAME", &cfg.Repository.Name)
	str("REPOSITORY_USER", &cfg.Repository.User)
	str("REPOSITORY_PASSWORD", &cfg.Repository.Password)
	str("REPOSITORY_DRIVER", &cfg.Repository.Driver)
	str("REPOSITORY_DSN", &cfg.Repository.DSN)
	str("SOURCE", &cfg.Source)
	str("TARGET", &cfg.Target)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("METRICS_FILE", &cfg.MetricsFile)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("S3_SECRET_KEY", &cfg.S3.SecretKey)
	str("S3_REGION", &cfg.S3.Region)

	if val := os.Getenv(EnvPrefix + "VERSIONS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Versions = b
		}
	}
	if val := os.Getenv(EnvPrefix + "PAGE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.PageSize = i
		}
	}
	if val := os.Getenv(EnvPrefix + "REPOSITORY_MAX_QUERIES_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Repository.MaxQueriesPerSecond = f
		}
	}
	if val := os.Getenv(EnvPrefix + "S3_USE_SSL"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.S3.UseSSL = b
		}
	}
}

// ApplyDefaults fills unset optional settings and trims trailing path
// separators from Source and Target.
func ApplyDefaults(cfg *Config) {
	if cfg.Repository.Driver == "" {
		cfg.Repository.Driver = sqlrepo.DriverSQLite
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = pager.DefaultPageSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	cfg.Source = TrimTrailingSlash(strings.TrimSpace(cfg.Source))
	cfg.Target = TrimTrailingSlash(strings.TrimSpace(cfg.Target))
}

// TrimTrailingSlash removes trailing "/" and "\" but never reduces a
// path to the empty string.
func TrimTrailingSlash(p string) string {
	trimmed := strings.TrimRight(p, `/\`)
	if trimmed == "" && p != "" {
		return p[:1]
	}
	return trimmed
}

// Validate checks that every setting an export run needs is present.
// The returned error wraps model.ErrConfig and names all missing
// settings at once.
func Validate(cfg *Config) error {
	return validate(cfg, true)
}

// ValidateCount is Validate without the target directory, for runs that
// only report the expected totals.
func ValidateCount(cfg *Config) error {
	return validate(cfg, false)
}

func validate(cfg *Config, needTarget bool) error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"repository.name", cfg.Repository.Name},
		{"repository.user", cfg.Repository.User},
		{"repository.password", cfg.Repository.Password},
		{"repository.dsn", cfg.Repository.DSN},
		{"source", cfg.Source},
	}
	if needTarget {
		required = append(required, struct {
			name  string
			value string
		}{"target", cfg.Target})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing settings: %s", model.ErrConfig, strings.Join(missing, ", "))
	}

	if _, err := sqlrepo.NormalizeDriver(cfg.Repository.Driver); err != nil {
		return fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	if cfg.PageSize < 0 {
		return fmt.Errorf("%w: page_size must be positive, got %d", model.ErrConfig, cfg.PageSize)
	}
	if cfg.Repository.MaxQueriesPerSecond < 0 {
		return fmt.Errorf("%w: repository.max_queries_per_second must not be negative", model.ErrConfig)
	}
	if !strings.HasPrefix(cfg.Source, "/") {
		return fmt.Errorf("%w: source %q must be an absolute repository path", model.ErrConfig, cfg.Source)
	}
	return nil
}
