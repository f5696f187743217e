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

package config

import "time"

// Config represents the simctl configuration
// Config 表示 simctl 配置
type Config struct {
	// Simulator process configuration / 模拟器进程配置
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`

	// Package metadata configuration / 包元数据配置
	Package PackageConfig `mapstructure:"package" yaml:"package"`

	// Host registry configuration / 宿主注册表配置
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// Status service configuration / 状态服务配置
	Status StatusConfig `mapstructure:"status" yaml:"status"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Telemetry configuration / 链路追踪配置
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// SimulatorConfig contains simulator process settings
// SimulatorConfig 包含模拟器进程设置
type SimulatorConfig struct {
	// Binary is the simulator executable
	// Binary 是模拟器可执行文件
	Binary string `mapstructure:"binary" yaml:"binary"`

	// Args are the simulator arguments, {port} is replaced by the debugger port
	// Args 是模拟器参数，{port} 会被替换为调试端口
	Args []string `mapstructure:"args" yaml:"args"`

	// ProfileDir is the simulator profile directory
	// ProfileDir 是模拟器配置文件目录
	ProfileDir string `mapstructure:"profile_dir" yaml:"profile_dir"`

	// WorkDir is the simulator working directory
	// WorkDir 是模拟器工作目录
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`

	// LogDir receives the simulator output log
	// LogDir 存放模拟器输出日志
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`

	// DefaultPort is used when a launch request carries no port (0 means required)
	// DefaultPort 在启动请求未携带端口时使用（0 表示必须提供）
	DefaultPort int `mapstructure:"default_port" yaml:"default_port"`

	// GracefulTimeout is the wait between SIGTERM and SIGKILL
	// GracefulTimeout 是 SIGTERM 与 SIGKILL 之间的等待时间
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout"`

	// Env holds extra KEY=VALUE environment entries
	// Env 是额外的 KEY=VALUE 环境变量
	Env []string `mapstructure:"env" yaml:"env"`
}

// PackageConfig contains package metadata settings
// PackageConfig 包含包元数据设置
type PackageConfig struct {
	// Manifest is the YAML package manifest; the built-in package is used when empty
	// Manifest 是 YAML 包清单；为空时使用内置包信息
	Manifest string `mapstructure:"manifest" yaml:"manifest"`

	// ID overrides the built-in package id
	// ID 覆盖内置的包 id
	ID string `mapstructure:"id" yaml:"id"`
}

// RegistryConfig contains host registry settings
// RegistryConfig 包含宿主注册表设置
type RegistryConfig struct {
	// Transport is mcp or catalog
	// Transport 取值为 mcp 或 catalog
	Transport string `mapstructure:"transport" yaml:"transport"`

	// ServerName is the name announced by the MCP server
	// ServerName 是 MCP 服务器公布的名称
	ServerName string `mapstructure:"server_name" yaml:"server_name"`
}

// StatusConfig contains status service settings
// StatusConfig 包含状态服务设置
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level"`

	// File is the log file path, empty for stderr only
	// File 是日志文件路径，为空时仅输出到标准错误
	File string `mapstructure:"file" yaml:"file"`

	// MaxSize is the maximum size of log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age" yaml:"max_age"`
}

// TelemetryConfig contains OpenTelemetry settings
// TelemetryConfig 包含 OpenTelemetry 设置
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool   `mapstructure:"insecure" yaml:"insecure"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}
