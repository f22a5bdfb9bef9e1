// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads settings from a YAML file, MAILTRIAGE_*
// environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matta/mailtriage/internal/homedir"
)

const envPrefix = "MAILTRIAGE"

// Token store backends.
const (
	StoreSQLite  = "sqlite"
	StoreKeyring = "keyring"
)

type AuthConfig struct {
	ClientSecret string `mapstructure:"client_secret"`
	TokenStore   string `mapstructure:"token_store"`
	TokenDB      string `mapstructure:"token_db"`
	APIKey       string `mapstructure:"api_key"`
}

type FetchConfig struct {
	Query       string `mapstructure:"query"`
	BatchSize   int    `mapstructure:"batch_size"`
	Concurrency int    `mapstructure:"concurrency"`
}

type RenderConfig struct {
	Width int `mapstructure:"width"`
}

type UIConfig struct {
	ScrollStep int `mapstructure:"scroll_step"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Config is the complete program configuration.
type Config struct {
	Auth   AuthConfig   `mapstructure:"auth"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Render RenderConfig `mapstructure:"render"`
	UI     UIConfig     `mapstructure:"ui"`
	Log    LogConfig    `mapstructure:"log"`
	Trace  bool         `mapstructure:"trace"`
}

// DefaultPath is where the config file lives unless --config says
// otherwise.
func DefaultPath() string {
	return filepath.Join(homedir.Get(), ".config", "mailtriage", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.client_secret", "~/.config/mailtriage/client_secret.json")
	v.SetDefault("auth.token_store", StoreSQLite)
	v.SetDefault("auth.token_db", "~/.mailtriage.db")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("fetch.query", "is:unread")
	v.SetDefault("fetch.batch_size", 10)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("render.width", 80)
	v.SetDefault("ui.scroll_step", 10)
	v.SetDefault("log.file", "~/.mailtriage.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("trace", false)
}

// RegisterFlags attaches the command line flags to cmd.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "path to the config file (default "+DefaultPath()+")")
	flags.BoolP("trace", "T", false, "request debug tracing of GMail HTTP traffic")
	flags.String("log-level", "", "logging level: error, warn, info, debug")
}

// Load reads the configuration for cmd, whose flags were registered
// with RegisterFlags and already parsed.  A missing config file is
// not an error unless it was named explicitly.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	if err := v.BindPFlag("trace", flags.Lookup("trace")); err != nil {
		return nil, errors.Wrap(err, "binding --trace")
	}
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return nil, errors.Wrap(err, "binding --log-level")
	}

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(homedir.Expand(path))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && os.IsNotExist(errors.Cause(err)) {
			notFound = true
		}
		if !notFound || explicit {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	cfg.Auth.ClientSecret = homedir.Expand(cfg.Auth.ClientSecret)
	cfg.Auth.TokenDB = homedir.Expand(cfg.Auth.TokenDB)
	cfg.Log.File = homedir.Expand(cfg.Log.File)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "warning" {
		cfg.Log.Level = "warn"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Auth.TokenStore {
	case StoreSQLite, StoreKeyring:
	default:
		return errors.Errorf("invalid auth.token_store: %q", cfg.Auth.TokenStore)
	}
	switch cfg.Log.Level {
	case "error", "warn", "info", "debug":
	default:
		return errors.Errorf("invalid log.level: %q", cfg.Log.Level)
	}
	if cfg.Fetch.BatchSize <= 0 {
		return errors.Errorf("fetch.batch_size must be positive, got %d", cfg.Fetch.BatchSize)
	}
	if cfg.Fetch.Concurrency <= 0 {
		return errors.Errorf("fetch.concurrency must be positive, got %d", cfg.Fetch.Concurrency)
	}
	return nil
}
