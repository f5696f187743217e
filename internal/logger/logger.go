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

// Package logger builds the simctl zap logger.
// logger 包构建 simctl 使用的 zap 日志记录器。
//
// Human readable output goes to stderr, since stdout carries the MCP stdio transport.
// When a log file is configured, JSON records are also written there and rotated.
// 可读日志输出到标准错误（标准输出用于 MCP stdio 传输）；配置日志文件时同时写入 JSON 并轮转。
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/devsim/simctl/internal/config"
)

// Option configures New.
// Option 用于配置 New。
type Option func(*options)

type options struct {
	console zapcore.WriteSyncer
}

// WithConsole replaces stderr as the console output
// WithConsole 替换标准错误作为控制台输出
func WithConsole(ws zapcore.WriteSyncer) Option {
	return func(o *options) {
		o.console = ws
	}
}

// Logger is a zap logger with an adjustable level and an optional rotating file.
// Logger 是可调整级别、可选轮转文件输出的 zap 日志记录器。
type Logger struct {
	*zap.Logger

	level zap.AtomicLevel
	file  *lumberjack.Logger
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
// ParseLevel 解析 debug、info、warn 或 error（不区分大小写）。
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", s)
	}
}

// New creates a Logger from the log configuration.
// New 根据日志配置创建 Logger。
func New(cfg config.LogConfig, opts ...Option) (*Logger, error) {
	o := &options{console: zapcore.Lock(os.Stderr)}
	for _, opt := range opts {
		opt(o)
	}

	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleConfig := encoderConfig
	consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), o.console, level),
	}

	l := &Logger{level: level}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(l.file), level))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return l, nil
}

// SetLevel changes the level of every output
// SetLevel 修改所有输出的日志级别
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current level
// Level 返回当前日志级别
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Close flushes buffered records and closes the log file.
// Close 刷新缓冲日志并关闭日志文件。
func (l *Logger) Close() error {
	// Sync on stderr fails on some terminals; only the file matters
	// 部分终端上对 stderr 的 Sync 会失败，只关心文件
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
