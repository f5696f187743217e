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

// Package process starts and stops simulator processes.
// process 包负责模拟器进程的启动与停止。
//
// This package provides:
// 此包提供：
// - Handle, the owning reference to one running simulator / Handle，单个运行中模拟器的持有引用
// - Factory, which starts a simulator and returns its Handle / Factory，启动模拟器并返回 Handle
// - ExecFactory, a Factory backed by os/exec / ExecFactory，基于 os/exec 的 Factory 实现
package process

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors for process management
// 进程管理的常见错误
var (
	// ErrInvalidPort indicates the requested debugger port is out of range
	// ErrInvalidPort 表示请求的调试端口超出范围
	ErrInvalidPort = errors.New("invalid debugger port")

	// ErrBinaryNotFound indicates the simulator binary could not be located
	// ErrBinaryNotFound 表示未找到模拟器可执行文件
	ErrBinaryNotFound = errors.New("simulator binary not found")

	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")

	// ErrStopFailed indicates the process failed to stop
	// ErrStopFailed 表示进程停止失败
	ErrStopFailed = errors.New("process failed to stop")
)

// Default values for process management
// 进程管理的默认值
const (
	// DefaultGracefulTimeout is the time allowed between SIGTERM and SIGKILL
	// DefaultGracefulTimeout 是 SIGTERM 与 SIGKILL 之间的等待时间
	DefaultGracefulTimeout = 30 * time.Second

	// PortPlaceholder is replaced by the debugger port in simulator arguments
	// PortPlaceholder 在模拟器参数中被替换为调试端口
	PortPlaceholder = "{port}"

	// OutputLogName is the simulator output log file name under the log directory
	// OutputLogName 是日志目录下模拟器输出日志的文件名
	OutputLogName = "simulator.log"
)

// DefaultArgs are the arguments used when none are configured.
// DefaultArgs 是未配置参数时使用的默认参数。
var DefaultArgs = []string{"-start-debugger-server", PortPlaceholder, "-no-remote"}

// Config holds the per-launch parameters of a simulator.
// Config 保存单次启动模拟器的参数。
type Config struct {
	// Port is the remote-debugger port the simulator listens on
	// Port 是模拟器监听的远程调试端口
	Port int `json:"port"`
}

// Validate checks the launch parameters.
// Validate 校验启动参数。
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// Handle is the owning reference to one running simulator.
// Handle 是单个运行中模拟器的持有引用。
//
// A Handle is running from the moment Factory.Create returns it until Stop returns.
// Handle 从 Factory.Create 返回起处于运行状态，直到 Stop 返回。
type Handle interface {
	// ID returns the unique instance identifier
	// ID 返回实例唯一标识
	ID() string

	// Port returns the remote-debugger port
	// Port 返回远程调试端口
	Port() int

	// PID returns the operating system process id
	// PID 返回操作系统进程号
	PID() int

	// StartedAt returns when the process was started
	// StartedAt 返回进程启动时间
	StartedAt() time.Time

	// Stop terminates the simulator and blocks until it has exited.
	// Calling Stop again returns the result of the first call.
	// Stop 终止模拟器并阻塞直到其退出。重复调用返回首次调用的结果。
	Stop(ctx context.Context) error
}

// Factory starts simulators.
// Factory 负责启动模拟器。
type Factory interface {
	// Create starts a simulator immediately and returns its Handle.
	// Create 立即启动模拟器并返回其 Handle。
	Create(ctx context.Context, cfg Config) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
// FactoryFunc 将函数适配为 Factory 接口。
type FactoryFunc func(ctx context.Context, cfg Config) (Handle, error)

// Create calls f(ctx, cfg).
func (f FactoryFunc) Create(ctx context.Context, cfg Config) (Handle, error) {
	return f(ctx, cfg)
}
