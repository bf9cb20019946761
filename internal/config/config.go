package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds everything the bridge needs to run. Values come from
// defaults, then an optional YAML file, then TERMBRIDGE_* environment
// variables, each layer overriding the last.
type Config struct {
	Port      int    `yaml:"port" envconfig:"PORT"`
	TLSPort   int    `yaml:"tls_port" envconfig:"TLS_PORT"`
	CertDir   string `yaml:"cert_dir" envconfig:"CERT_DIR"`
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	StaticDir string `yaml:"static_dir" envconfig:"STATIC_DIR"`

	MaxSessionsPerToken int           `yaml:"max_sessions_per_token" envconfig:"MAX_SESSIONS_PER_TOKEN"`
	MaxSessionsGlobal   int           `yaml:"max_sessions_global" envconfig:"MAX_SESSIONS_GLOBAL"`
	IdleTimeout         time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	PerSessionBudget    int64         `yaml:"per_session_budget" envconfig:"PER_SESSION_BUDGET"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout" envconfig:"HEARTBEAT_TIMEOUT"`
	ReclaimInterval   time.Duration `yaml:"reclaim_interval" envconfig:"RECLAIM_INTERVAL"`

	HistoryLimit int    `yaml:"history_limit" envconfig:"HISTORY_LIMIT"`
	AgentsFile   string `yaml:"agents_file" envconfig:"AGENTS_FILE"`
	AutoAuth     bool   `yaml:"auto_auth" envconfig:"AUTO_AUTH"`
}

// Defaults mirrors the shipped configuration.
func Defaults() Config {
	return Config{
		Port:                8420,
		TLSPort:             8443,
		CertDir:             "./certs",
		DataDir:             "./data",
		MaxSessionsPerToken: 8,
		MaxSessionsGlobal:   50,
		IdleTimeout:         30 * time.Minute,
		PerSessionBudget:    10 << 20,
		HeartbeatInterval:   15 * time.Second,
		HeartbeatTimeout:    30 * time.Second,
		ReclaimInterval:     5 * time.Minute,
		HistoryLimit:        100,
	}
}

// Load builds the configuration. A missing file path, or a path that does
// not exist, is not an error; env overrides always apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process("TERMBRIDGE", &cfg); err != nil {
		return cfg, fmt.Errorf("env config: %w", err)
	}

	if cfg.MaxSessionsPerToken <= 0 || cfg.MaxSessionsGlobal <= 0 {
		return cfg, fmt.Errorf("session caps must be positive")
	}
	if cfg.HeartbeatTimeout < cfg.HeartbeatInterval {
		return cfg, fmt.Errorf("heartbeat timeout must not be shorter than the interval")
	}
	return cfg, nil
}
