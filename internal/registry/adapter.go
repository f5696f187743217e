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

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/devsim/simctl/internal/lifecycle"
	"github.com/devsim/simctl/internal/packageinfo"
)

var (
	// ErrAdapterStarted indicates Start was already called.
	// ErrAdapterStarted 表示已调用过 Start。
	ErrAdapterStarted = errors.New("registry: adapter already started")
	// ErrAdapterClosed indicates the adapter has been shut down.
	// ErrAdapterClosed 表示适配器已关闭。
	ErrAdapterClosed = errors.New("registry: adapter shut down")
)

// Target is the controller surface the adapter forwards to.
// Target 是适配器转发调用的控制器接口。
type Target interface {
	Launch(ctx context.Context, opts lifecycle.Options) error
	Close(ctx context.Context) error
}

// AdapterOption configures an Adapter.
// AdapterOption 用于配置 Adapter。
type AdapterOption func(*Adapter)

// WithAdapterLogger sets the adapter logger.
// WithAdapterLogger 设置适配器日志记录器。
func WithAdapterLogger(logger *zap.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Adapter registers a controller in a Registry under the display name of its package
// and detaches it again on shutdown.
// Adapter 以包的显示名称将控制器注册到 Registry，并在关闭时将其移除。
type Adapter struct {
	target    Target
	registry  Registry
	packages  packageinfo.Provider
	packageID string
	logger    *zap.Logger

	ready chan struct{}

	// opsMu is read-held by forwarded operations; Shutdown write-locks it to drain them
	// opsMu 由转发的操作读持有；Shutdown 写锁定以等待其完成
	opsMu sync.RWMutex

	mu         sync.Mutex
	started    bool
	closed     bool
	registered bool
	name       string
	info       AppInfo
	err        error
	cancel     context.CancelFunc
}

// NewAdapter creates an Adapter for target.
// NewAdapter 为 target 创建 Adapter。
func NewAdapter(target Target, reg Registry, pkgs packageinfo.Provider, packageID string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		target:    target,
		registry:  reg,
		packages:  pkgs,
		packageID: packageID,
		logger:    zap.NewNop(),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start resolves the package asynchronously and registers once it is known.
// Start 异步解析包信息，解析完成后进行注册。
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAdapterClosed
	}
	if a.started {
		return ErrAdapterStarted
	}
	a.started = true

	resolveCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.resolveAndRegister(resolveCtx)
	return nil
}

// Ready is closed once registration has succeeded or failed.
// Ready 在注册成功或失败后关闭。
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

// Name returns the display name, empty until the package is resolved.
// Name 返回显示名称，包解析完成前为空。
func (a *Adapter) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// Registered reports whether the entry is currently registered.
// Registered 报告条目当前是否已注册。
func (a *Adapter) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

// Err returns the resolution or registration error, if any.
// Err 返回解析或注册错误（如有）。
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Adapter) resolveAndRegister(ctx context.Context) {
	defer close(a.ready)

	info, err := a.packages.Resolve(ctx, a.packageID)
	if err != nil {
		a.fail(fmt.Errorf("resolve package %s: %w", a.packageID, err))
		return
	}

	name := packageinfo.DisplayName(info.Name)
	appInfo := AppInfo{Label: name, PackageID: info.ID, Version: info.Version}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Shutdown won the race: never register afterwards
	// Shutdown 先发生：之后不再注册
	if a.closed {
		a.logger.Info("Adapter shut down before registration", zap.String("name", name))
		return
	}

	a.name = name
	a.info = appInfo
	if err := a.registry.Register(name, a.operations(), appInfo); err != nil {
		a.err = fmt.Errorf("register %s: %w", name, err)
		a.logger.Error("Failed to register simulator", zap.String("name", name), zap.Error(err))
		return
	}
	a.registered = true
	a.logger.Info("Simulator registered",
		zap.String("name", name),
		zap.String("package_id", info.ID),
		zap.String("version", info.Version),
	)
}

func (a *Adapter) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed && errors.Is(err, context.Canceled) {
		return
	}
	a.err = err
	a.logger.Error("Simulator registration failed", zap.Error(err))
}

// operations builds the registry callbacks forwarding to the target.
// Calls arriving after Shutdown began fail with ErrAdapterClosed.
// operations 构建转发到 target 的注册回调，Shutdown 开始后到达的调用返回 ErrAdapterClosed。
func (a *Adapter) operations() Operations {
	return Operations{
		Launch: func(ctx context.Context, raw map[string]any) error {
			opts, err := lifecycle.ParseOptions(raw)
			if err != nil {
				return err
			}
			return a.forward(func() error { return a.target.Launch(ctx, opts) })
		},
		Close: func(ctx context.Context) error {
			return a.forward(func() error { return a.target.Close(ctx) })
		},
	}
}

func (a *Adapter) forward(call func() error) error {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrAdapterClosed
	}
	return call()
}

// Shutdown unregisters the display name, waits for forwarded calls still in flight
// and then closes the target. Unregistration failures are logged, never returned.
// Repeated calls are no-ops.
// Shutdown 先注销显示名称，等待仍在执行的转发调用结束，再关闭 target。
// 注销失败只记录日志，不返回。重复调用不做处理。
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}
	if !a.started {
		a.started = true
		close(a.ready)
	}
	name := a.name
	a.registered = false
	a.mu.Unlock()

	if err := a.registry.Unregister(name); err != nil {
		a.logger.Warn("Failed to unregister simulator", zap.String("name", name), zap.Error(err))
	}

	// Wait for in-flight launch/close / 等待进行中的启动与关闭
	a.opsMu.Lock()
	defer a.opsMu.Unlock()

	if err := a.target.Close(ctx); err != nil {
		a.logger.Error("Failed to close simulator on shutdown", zap.Error(err))
		return err
	}
	a.logger.Info("Adapter shut down", zap.String("name", name))
	return nil
}
