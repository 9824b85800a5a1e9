package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gridhall/gridhall/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultListenAddress = "localhost"
	defaultListenPort    = 8000
	defaultTokenTTL      = 15 * time.Minute
	defaultHistoryLimit  = 50
	defaultMessageMaxLen = 500
	defaultWalkSpeed     = 4.0
	defaultCanonicalSlug = "lobby"

	// MaxTokenTTL is the hard ceiling on token lifetime, longer
	// configured values are clamped.
	MaxTokenTTL = 15 * time.Minute
)

// Config is the global configuration object filled from the TOML
// configuration file(s), environment and command-line flags.
type Config struct {
	ListenAddress     string            `mapstructure:"listen_address"`
	ListenPort        int               `mapstructure:"listen_port"`
	TokenSecret       string            `mapstructure:"token_secret"`
	TokenTTL          time.Duration     `mapstructure:"token_ttl"`
	HistoryLimit      int               `mapstructure:"history_limit"`
	MessageMaxLen     int               `mapstructure:"message_max_len"`
	WalkSpeed         float64           `mapstructure:"walk_speed"`
	CanonicalSlug     string            `mapstructure:"canonical_slug"`
	LogLevel          string            `mapstructure:"log_level"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig selects the persistence backend. Type is one of
// "sqlite", "postgres" or "buntdb"; DSN is backend-specific (a file
// path or ":memory:" for sqlite and buntdb).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

// Validate applies the hard limits and checks the invariants that must
// hold before the server starts accepting connections.
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("token_secret must be set")
	}
	if c.TokenTTL <= 0 || c.TokenTTL > MaxTokenTTL {
		c.TokenTTL = MaxTokenTTL
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.MessageMaxLen <= 0 {
		c.MessageMaxLen = defaultMessageMaxLen
	}
	if c.WalkSpeed <= 0 {
		c.WalkSpeed = defaultWalkSpeed
	}
	if c.CanonicalSlug == "" {
		c.CanonicalSlug = defaultCanonicalSlug
	}
	return nil
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("listen-address", defaultListenAddress, "bind host")
	flagSet.Int("listen-port", defaultListenPort, "bind port")
	flagSet.String("token-secret", "", "symmetric secret for token verification")
	flagSet.String("log-level", "", "log level (TRACE/DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in this directory are
// concatenated. Environment variables with the GRIDHALL prefix and the
// given flag set override file values.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("listen_address", defaultListenAddress)
	viper.SetDefault("listen_port", defaultListenPort)
	viper.SetDefault("token_ttl", defaultTokenTTL)
	viper.SetDefault("history_limit", defaultHistoryLimit)
	viper.SetDefault("message_max_len", defaultMessageMaxLen)
	viper.SetDefault("walk_speed", defaultWalkSpeed)
	viper.SetDefault("canonical_slug", defaultCanonicalSlug)
	if err := viper.BindPFlags(flagSet); err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("GRIDHALL")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config", "error", err)
	}
	return &cfg, nil
}
