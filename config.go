// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package rpcproxy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the executor's runtime configuration. Values come from an
// optional YAML file, EXECUTOR_* environment variables, and flags bound
// by the command line layer, in ascending precedence.
type Config struct {
	// SocketName is the endpoint name; the socket is created at
	// SocketDir/SocketName.
	SocketName string `mapstructure:"socket_name"`
	SocketDir  string `mapstructure:"socket_dir"`

	// MaxFrameBytes is the frame-length ceiling. A request declaring a
	// larger frame is fatal for its connection.
	MaxFrameBytes uint32 `mapstructure:"max_frame_bytes"`

	// DebugAddr enables the debug HTTP listener (healthz, metrics) when
	// non-empty.
	DebugAddr string `mapstructure:"debug_addr"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

// SocketPath returns the filesystem path of the listening endpoint.
func (c *Config) SocketPath() string {
	return filepath.Join(c.SocketDir, c.SocketName)
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("socket_name", "rpc_proxy")
	v.SetDefault("socket_dir", "/tmp")
	v.SetDefault("max_frame_bytes", 16*1024*1024)
	v.SetDefault("debug_addr", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig builds the configuration from v, reading the YAML file at
// cfgFile when non-empty.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setConfigDefaults(v)
	v.SetEnvPrefix("EXECUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.SocketName == "" {
		return nil, fmt.Errorf("socket_name must not be empty")
	}
	if cfg.MaxFrameBytes == 0 {
		return nil, fmt.Errorf("max_frame_bytes must be positive")
	}
	return &cfg, nil
}
