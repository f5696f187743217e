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

package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ExecConfig describes how simulators are spawned.
// ExecConfig 描述如何启动模拟器进程。
type ExecConfig struct {
	// Binary is the simulator executable, looked up in PATH when not absolute
	// Binary 是模拟器可执行文件，非绝对路径时在 PATH 中查找
	Binary string

	// Args are the simulator arguments; every {port} is replaced by the debugger port
	// Args 是模拟器参数；其中的 {port} 会被替换为调试端口
	Args []string

	// ProfileDir is passed as "-profile <dir>" when set
	// ProfileDir 非空时以 "-profile <dir>" 传入
	ProfileDir string

	// WorkDir is the working directory of the simulator
	// WorkDir 是模拟器的工作目录
	WorkDir string

	// Env holds extra KEY=VALUE entries appended to the inherited environment
	// Env 是追加到继承环境变量之后的 KEY=VALUE 项
	Env []string

	// LogDir receives simulator stdout/stderr; output is discarded when empty
	// LogDir 接收模拟器的标准输出和错误输出；为空时丢弃输出
	LogDir string

	// Log rotation settings in megabytes / days
	// 日志轮转设置（MB / 天）
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL
	// GracefulTimeout 是 SIGTERM 与 SIGKILL 之间的等待时间
	GracefulTimeout time.Duration
}

// ExecOption configures an ExecFactory.
// ExecOption 用于配置 ExecFactory。
type ExecOption func(*ExecFactory)

// WithLogger sets the logger used by the factory and its handles.
// WithLogger 设置工厂及其句柄使用的日志记录器。
func WithLogger(logger *zap.Logger) ExecOption {
	return func(f *ExecFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// ExecFactory starts simulators as child processes.
// ExecFactory 以子进程方式启动模拟器。
type ExecFactory struct {
	config ExecConfig
	logger *zap.Logger
}

// NewExecFactory creates an ExecFactory.
// NewExecFactory 创建 ExecFactory。
func NewExecFactory(cfg ExecConfig, opts ...ExecOption) *ExecFactory {
	if len(cfg.Args) == 0 {
		cfg.Args = append([]string(nil), DefaultArgs...)
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	f := &ExecFactory{config: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create starts a simulator listening on cfg.Port.
// Create 启动一个监听 cfg.Port 的模拟器。
//
// The process lifetime is not bound to ctx; it runs until Handle.Stop is called.
// 进程生命周期不受 ctx 约束，直到调用 Handle.Stop 为止。
func (f *ExecFactory) Create(ctx context.Context, cfg Config) (Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	binary, err := exec.LookPath(f.config.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, f.config.Binary, err)
	}

	args := f.buildArgs(cfg.Port)
	cmd := exec.Command(binary, args...)
	setProcGroupAttr(cmd)
	cmd.Dir = f.config.WorkDir
	cmd.Env = append(os.Environ(), f.config.Env...)

	id := uuid.NewString()
	output := f.outputWriter()
	cmd.Stdout = output
	cmd.Stderr = output

	f.logger.Debug("Starting simulator",
		zap.String("instance_id", id),
		zap.String("binary", binary),
		zap.Strings("args", args),
	)

	if err := cmd.Start(); err != nil {
		_ = output.Close()
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	h := &execHandle{
		id:              id,
		port:            cfg.Port,
		cmd:             cmd,
		startedAt:       time.Now(),
		output:          output,
		gracefulTimeout: f.config.GracefulTimeout,
		logger:          f.logger.With(zap.String("instance_id", id)),
		done:            make(chan struct{}),
	}
	go h.wait()

	h.logger.Info("Simulator process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("port", cfg.Port),
	)
	return h, nil
}

// buildArgs expands the configured arguments for port
// buildArgs 根据端口展开配置的参数
func (f *ExecFactory) buildArgs(port int) []string {
	portStr := strconv.Itoa(port)
	args := make([]string, 0, len(f.config.Args)+2)
	for _, arg := range f.config.Args {
		args = append(args, strings.ReplaceAll(arg, PortPlaceholder, portStr))
	}
	if f.config.ProfileDir != "" {
		args = append(args, "-profile", f.config.ProfileDir)
	}
	return args
}

// outputWriter returns the sink for simulator output
// outputWriter 返回模拟器输出的写入目标
func (f *ExecFactory) outputWriter() io.WriteCloser {
	if f.config.LogDir == "" {
		return nopWriteCloser{io.Discard}
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(f.config.LogDir, OutputLogName),
		MaxSize:    f.config.LogMaxSize,
		MaxBackups: f.config.LogMaxBackups,
		MaxAge:     f.config.LogMaxAge,
		Compress:   true,
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// execHandle is the Handle of a simulator started by ExecFactory.
// execHandle 是 ExecFactory 启动的模拟器句柄。
type execHandle struct {
	id              string
	port            int
	cmd             *exec.Cmd
	startedAt       time.Time
	output          io.WriteCloser
	gracefulTimeout time.Duration
	logger          *zap.Logger

	// done is closed once the process has been reaped / 进程回收后关闭 done
	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

func (h *execHandle) ID() string           { return h.id }
func (h *execHandle) Port() int            { return h.port }
func (h *execHandle) PID() int             { return h.cmd.Process.Pid }
func (h *execHandle) StartedAt() time.Time { return h.startedAt }

// wait reaps the process and releases its output
// wait 回收进程并释放其输出
func (h *execHandle) wait() {
	h.waitErr = h.cmd.Wait()
	if err := h.output.Close(); err != nil {
		h.logger.Warn("Failed to close simulator output", zap.Error(err))
	}
	h.logger.Info("Simulator process exited", zap.NamedError("exit", h.waitErr))
	close(h.done)
}

// exited reports whether the process has been reaped
// exited 报告进程是否已被回收
func (h *execHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Stop sends SIGTERM, waits for graceful shutdown, then sends SIGKILL.
// Stop 发送 SIGTERM，等待优雅退出，超时后发送 SIGKILL。
//
// Cancelling ctx skips the remaining graceful wait.
// 取消 ctx 会跳过剩余的优雅等待时间。
func (h *execHandle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.stopErr = h.stop(ctx)
	})
	return h.stopErr
}

func (h *execHandle) stop(ctx context.Context) error {
	if h.exited() {
		return nil
	}

	h.logger.Info("Stopping simulator", zap.Int("pid", h.PID()))
	if err := terminateGroup(h.cmd); err != nil {
		if h.exited() {
			return nil
		}
		return fmt.Errorf("%w: SIGTERM pid %d: %v", ErrStopFailed, h.PID(), err)
	}

	timer := time.NewTimer(h.gracefulTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
		h.logger.Warn("Simulator did not exit in time, killing",
			zap.Duration("graceful_timeout", h.gracefulTimeout))
	case <-ctx.Done():
		h.logger.Warn("Stop context done, killing simulator", zap.Error(ctx.Err()))
	}

	if err := killGroup(h.cmd); err != nil && !h.exited() {
		return fmt.Errorf("%w: SIGKILL pid %d: %v", ErrStopFailed, h.PID(), err)
	}
	<-h.done
	return nil
}
