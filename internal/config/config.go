/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config provides configuration management for simctl.
// config 包提供 simctl 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (SIMCTL_*) / 环境变量（SIMCTL_*）
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath      = "/etc/simctl/config.yaml"
	EnvPrefix              = "SIMCTL"
	DefaultBinary          = "b2g"
	DefaultGracefulTimeout = 30 * time.Second
	DefaultTransport       = TransportMCP
	DefaultServerName      = "simctl"
	DefaultStatusAddr      = "127.0.0.1:9090"
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = 100 // MB
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAge       = 7 // days
	DefaultServiceName     = "simctl"
	DefaultOTLPEndpoint    = "localhost:4317"
)

// Registry transports
// 注册表传输方式
const (
	TransportMCP     = "mcp"
	TransportCatalog = "catalog"
)

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv(EnvPrefix + "_CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if we have defaults
		// 如果有默认值，配置文件未找到不是错误
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Simulator defaults / 模拟器默认值
	v.SetDefault("simulator.binary", DefaultBinary)
	v.SetDefault("simulator.args", []string{"-start-debugger-server", "{port}", "-no-remote"})
	v.SetDefault("simulator.profile_dir", "")
	v.SetDefault("simulator.work_dir", "")
	v.SetDefault("simulator.log_dir", "")
	v.SetDefault("simulator.default_port", 0)
	v.SetDefault("simulator.graceful_timeout", DefaultGracefulTimeout)
	v.SetDefault("simulator.env", []string{})

	// Package defaults / 包默认值
	v.SetDefault("package.manifest", "")
	v.SetDefault("package.id", "")

	// Registry defaults / 注册表默认值
	v.SetDefault("registry.transport", DefaultTransport)
	v.SetDefault("registry.server_name", DefaultServerName)

	// Status defaults / 状态服务默认值
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", DefaultStatusAddr)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	// Telemetry defaults / 链路追踪默认值
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", DefaultOTLPEndpoint)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", DefaultServiceName)
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	// Validate simulator / 验证模拟器配置
	if strings.TrimSpace(c.Simulator.Binary) == "" {
		return errors.New("simulator.binary is required")
	}
	if c.Simulator.DefaultPort < 0 || c.Simulator.DefaultPort > 65535 {
		return fmt.Errorf("simulator.default_port out of range: %d", c.Simulator.DefaultPort)
	}
	if c.Simulator.GracefulTimeout < 0 {
		return errors.New("simulator.graceful_timeout must not be negative")
	}
	for _, kv := range c.Simulator.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("simulator.env entry must be KEY=VALUE: %q", kv)
		}
	}

	// Validate registry / 验证注册表配置
	switch c.Registry.Transport {
	case TransportMCP, TransportCatalog:
	default:
		return fmt.Errorf("invalid registry transport: %s (must be mcp or catalog)", c.Registry.Transport)
	}

	// Validate status service / 验证状态服务配置
	if c.Status.Enabled {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			return fmt.Errorf("invalid status.addr %q: %w", c.Status.Addr, err)
		}
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	// Validate telemetry / 验证链路追踪配置
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Simulator.Binary: %s, Registry.Transport: %s, Status.Enabled: %t, Log.Level: %s}",
		c.Simulator.Binary,
		c.Registry.Transport,
		c.Status.Enabled,
		c.Log.Level,
	)
}

// ToYAML serializes the configuration to YAML format
// ToYAML 将配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
