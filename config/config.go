// Package config loads the settings of the quill command line tool.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. built-in defaults
//  2. the config file (--config, or quill.yaml in the working directory)
//  3. QUILL_* environment variables
//  4. command line flags that were explicitly set
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
)

// Defaults.
const (
	DefaultDriver    = "sqlite"
	DefaultDSN       = ":memory:"
	DefaultOutput    = "table"
	DefaultSlowQuery = 200 * time.Millisecond
	EnvPrefix        = "QUILL_"
)

// Output formats.
var Outputs = []string{"table", "json", "yaml", "msgpack"}

// defaultFiles are tried in order when no config path is given.
var defaultFiles = []string{"quill.yaml", "quill.yml"}

// Config is the resolved tool configuration.
type Config struct {
	// Driver is the database/sql driver name: sqlite, postgres, pgx or mysql.
	Driver string `koanf:"driver"`
	// DSN is the data source name passed to the driver.
	DSN string `koanf:"dsn"`
	// Conventions is an optional path to a conventions YAML file.
	Conventions string        `koanf:"conventions"`
	Output      string        `koanf:"output"`
	Verbose     bool          `koanf:"verbose"`
	SlowQuery   time.Duration `koanf:"slow_query"`
	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.Driver == "" {
		errs = append(errs, errors.New("driver is required"))
	}
	if !slices.Contains(Outputs, c.Output) {
		errs = append(errs, fmt.Errorf("unknown output %q (want one of %s)", c.Output, strings.Join(Outputs, ", ")))
	}
	if c.SlowQuery < 0 {
		errs = append(errs, fmt.Errorf("negative slow_query %s", c.SlowQuery))
	}
	return errors.Join(errs...)
}

// RegisterFlags defines the flags Load reads on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./quill.yaml)")
	fs.String("driver", DefaultDriver, "database driver (sqlite, postgres, pgx, mysql)")
	fs.String("dsn", DefaultDSN, "data source name")
	fs.String("conventions", "", "conventions YAML file")
	fs.StringP("output", "o", DefaultOutput, "output format ("+strings.Join(Outputs, "|")+")")
	fs.BoolP("verbose", "v", false, "log every statement")
	fs.Duration("slow-query", DefaultSlowQuery, "threshold for slow statement warnings")
}

// Load builds the configuration from defaults, the config file at path,
// the environment and flags. An empty path looks for quill.yaml in the
// working directory and skips the file layer when there is none. flags
// may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"driver":     DefaultDriver,
		"dsn":        DefaultDSN,
		"output":     DefaultOutput,
		"slow_query": DefaultSlowQuery.String(),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	cfgFile, err := findFile(path)
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	cfg := &Config{File: cfgFile}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Conventions != "" {
		if cfg.Conventions, err = homedir.Expand(cfg.Conventions); err != nil {
			return nil, fmt.Errorf("config: conventions path: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// findFile resolves the config file to load. An explicit path must
// exist.
func findFile(path string) (string, error) {
	if path != "" {
		p, err := homedir.Expand(path)
		if err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return p, nil
	}
	for _, name := range defaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}
