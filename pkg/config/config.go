// Package config loads table loader configuration files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/catalog/mysql"
	"github.com/txn2/table-loader/pkg/catalog/postgres"
	"github.com/txn2/table-loader/pkg/catalog/sqlite"
	"github.com/txn2/table-loader/pkg/loader"
	"github.com/txn2/table-loader/pkg/registry"
)

// Transports accepted in server.transport.
const (
	TransportNone  = "none"
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

const (
	defaultServerName = "table-loader"
	defaultAddress    = ":8080"
	defaultMaxRows    = 100
)

// Config is the table loader configuration.
type Config struct {
	Connection catalog.Connection `yaml:"connection"`

	// Database is the source identifier the loader switches to.
	Database   string            `yaml:"database"`
	Refresh    bool              `yaml:"refresh"`
	Tables     []string          `yaml:"tables"`
	Conditions map[string]string `yaml:"conditions"`

	Seed    SeedConfig    `yaml:"seed"`
	Server  ServerConfig  `yaml:"server"`
	Toolkit ToolkitConfig `yaml:"toolkit"`
}

// SeedConfig configures migrations applied to the source before loading.
type SeedConfig struct {
	MigrationsDir string `yaml:"migrations_dir"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`
	Address   string `yaml:"address"`

	// ProbeTimeout bounds the catalog ping behind /readyz. Zero keeps the
	// checker default.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// ToolkitConfig configures the MCP table tools.
type ToolkitConfig struct {
	DefaultMaxRows int `yaml:"default_max_rows"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Tables == nil {
		cfg.Tables = []string{loader.Wildcard}
	}
	if cfg.Conditions == nil {
		cfg.Conditions = map[string]string{}
	}

	switch cfg.Connection.Driver {
	case registry.DriverMySQL:
		if cfg.Connection.Port == 0 && cfg.Connection.DSN == "" {
			cfg.Connection.Port = mysql.DefaultPort
		}
	case registry.DriverPostgres:
		if cfg.Connection.Port == 0 && cfg.Connection.DSN == "" {
			cfg.Connection.Port = postgres.DefaultPort
		}
	case registry.DriverSQLite:
		if cfg.Database == "" {
			cfg.Database = sqlite.MainSource
		}
	}

	if cfg.Server.Name == "" {
		cfg.Server.Name = defaultServerName
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportNone
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Toolkit.DefaultMaxRows == 0 {
		cfg.Toolkit.DefaultMaxRows = defaultMaxRows
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	drivers := registry.NewBuiltinRegistry()
	switch {
	case c.Connection.Driver == "":
		errs = append(errs, "connection.driver is required")
	case !drivers.Has(c.Connection.Driver):
		errs = append(errs, fmt.Sprintf("connection.driver %q is not supported (available: %s)",
			c.Connection.Driver, strings.Join(drivers.Drivers(), ", ")))
	}

	if c.Database == "" {
		errs = append(errs, "database is required")
	}
	if len(c.Tables) == 0 {
		errs = append(errs, "tables must not be empty")
	}

	switch c.Server.Transport {
	case TransportNone, TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Sprintf("server.transport %q must be one of none, stdio, http", c.Server.Transport))
	}

	if c.Server.ProbeTimeout < 0 {
		errs = append(errs, "server.probe_timeout must not be negative")
	}

	if c.Toolkit.DefaultMaxRows < 0 {
		errs = append(errs, "toolkit.default_max_rows must not be negative")
	}

	if c.Seed.MigrationsDir != "" && c.Connection.Driver != registry.DriverPostgres {
		errs = append(errs, "seed.migrations_dir is only supported for the postgres driver")
	}

	if len(errs) > 0 {
		return &catalog.ConfigurationError{Reason: "config validation errors: " + strings.Join(errs, "; ")}
	}

	return nil
}

// LoaderConfig returns the loader configuration described by c.
func (c *Config) LoaderConfig() loader.Config {
	return loader.Config{
		Source:     c.Database,
		Refresh:    c.Refresh,
		Tables:     c.Tables,
		Conditions: c.Conditions,
	}
}
