/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig.
const (
	EnvDatabaseURL    = "DATABASE_URL"
	EnvDatabaseDriver = "DATABASE_DRIVER"
	EnvConfigFile     = "PRISM_DB_CONFIG"
)

// DefaultEnvFiles are loaded in order; a variable set by an earlier file (or
// by the process environment) is never overwritten by a later one.
var DefaultEnvFiles = []string{".env.local", ".env"}

type loadOptions struct {
	envFiles   []string
	configFile string
}

// LoadOption customizes LoadConfig.
type LoadOption func(*loadOptions)

// WithEnvFiles replaces DefaultEnvFiles. Passing nothing disables env files.
func WithEnvFiles(files ...string) LoadOption {
	return func(o *loadOptions) {
		o.envFiles = files
	}
}

// WithConfigFile sets the YAML tuning file, taking precedence over
// PRISM_DB_CONFIG.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// LoadConfig is the startup validation step: it loads env files, the optional
// YAML tuning file and DB_* overrides, then validates DATABASE_URL. A missing
// URL yields a *ConfigurationError; no default is ever substituted.
func LoadConfig(opts ...LoadOption) (*Config, error) {
	o := loadOptions{envFiles: DefaultEnvFiles}
	for _, opt := range opts {
		opt(&o)
	}

	if err := loadEnvFiles(o.envFiles); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	path := o.configFile
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	overrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the aggregated configuration.
func (c *Config) Validate() error {
	if c == nil {
		return missingURLError()
	}
	return c.ConnectionConfig.Validate()
}

// Validate checks that a URL is present and names a supported target.
func (c *ConnectionConfig) Validate() error {
	if c == nil || strings.TrimSpace(c.URL) == "" {
		return missingURLError()
	}
	_, err := resolveTarget(c)
	return err
}

// overrideFromEnv applies environment values over file and default values.
func overrideFromEnv(cfg *Config) {
	cc := &cfg.ConnectionConfig
	cc.URL = os.Getenv(EnvDatabaseURL)

	if driver := os.Getenv(EnvDatabaseDriver); driver != "" {
		cc.Driver = driver
	}
	envInt("DB_MAX_IDLE_CONNS", &cc.MaxIdleConns)
	envInt("DB_MAX_OPEN_CONNS", &cc.MaxOpenConns)
	envInt("DB_MAX_RECONNECT_TRIES", &cc.MaxReconnectTries)
	envSeconds("DB_CONN_MAX_LIFETIME", &cc.ConnMaxLifetime)
	envSeconds("DB_CONN_MAX_IDLE_TIME", &cc.ConnMaxIdleTime)
	envSeconds("DB_CONNECT_TIMEOUT", &cc.ConnectTimeout)
	envSeconds("DB_QUERY_TIMEOUT", &cc.QueryTimeout)
	envSeconds("DB_RECONNECT_INTERVAL", &cc.ReconnectInterval)
	envSeconds("DB_HEALTH_CHECK_INTERVAL", &cc.HealthCheckInterval)
	envBool("DB_ENABLE_RECONNECT", &cc.EnableReconnect)
	envBool("DB_ENABLE_QUERY_LOG", &cc.EnableQueryLog)
	if ms := os.Getenv("DB_SLOW_QUERY_TIME_MS"); ms != "" {
		if val, err := strconv.Atoi(ms); err == nil {
			cc.SlowQueryTime = time.Duration(val) * time.Millisecond
		}
	}

	envBool("DB_MIGRATE_ON_STARTUP", &cfg.DataMigrateConfig.EnableMigrateOnStartup)
	envBool("DB_SEED_ON_MIGRATION", &cfg.DataInitConfig.AutoInitOnMigration)
	if env := os.Getenv("DB_SEED_ENV"); env != "" {
		cfg.DataInitConfig.Environment = env
	}
	if path := os.Getenv("DB_SEED_PATH"); path != "" {
		cfg.DataInitConfig.Filepath = path
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
