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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsim/simctl/internal/lifecycle"
	"github.com/devsim/simctl/internal/packageinfo"
	"github.com/devsim/simctl/internal/process"
)

// callLog is shared by fakes to check cross-component ordering
// callLog 由各 fake 共享，用于检查跨组件调用顺序
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeTarget struct {
	log      *callLog
	closeErr error
	opts     []lifecycle.Options
}

func (f *fakeTarget) Launch(_ context.Context, opts lifecycle.Options) error {
	f.log.add("launch")
	f.opts = append(f.opts, opts)
	return nil
}

func (f *fakeTarget) Close(context.Context) error {
	f.log.add("close")
	return f.closeErr
}

type recordingRegistry struct {
	*Catalog
	log           *callLog
	registerErr   error
	unregisterErr error
}

func newRecordingRegistry(log *callLog) *recordingRegistry {
	return &recordingRegistry{Catalog: NewCatalog(), log: log}
}

func (r *recordingRegistry) Register(name string, ops Operations, info AppInfo) error {
	r.log.add("register:" + name)
	if r.registerErr != nil {
		return r.registerErr
	}
	return r.Catalog.Register(name, ops, info)
}

func (r *recordingRegistry) Unregister(name string) error {
	r.log.add("unregister:" + name)
	if r.unregisterErr != nil {
		return r.unregisterErr
	}
	return r.Catalog.Unregister(name)
}

// blockingProvider resolves only after release is closed or ctx is done
// blockingProvider 在 release 关闭或 ctx 结束后才返回
type blockingProvider struct {
	release chan struct{}
	info    packageinfo.Info
	calls   int
}

func (p *blockingProvider) Resolve(ctx context.Context, id string) (*packageinfo.Info, error) {
	p.calls++
	select {
	case <-p.release:
		info := p.info
		return &info, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitReady(t *testing.T, a *Adapter) {
	t.Helper()
	select {
	case <-a.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not become ready")
	}
}

func TestAdapter_RegistersDisplayName(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo@example.org", Name: "Foo Simulator", Version: "1.0"})
	a := NewAdapter(&fakeTarget{log: log}, reg, pkgs, "foo@example.org")

	assert.Empty(t, a.Name())
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	assert.Equal(t, "Foo", a.Name())
	assert.True(t, a.Registered())
	assert.NoError(t, a.Err())

	entry, ok := reg.Lookup("Foo")
	require.True(t, ok)
	assert.Equal(t, AppInfo{Label: "Foo", PackageID: "foo@example.org", Version: "1.0"}, entry.Info)
	assert.Equal(t, []string{"register:Foo"}, log.get())
}

func TestAdapter_OperationsForwardToTarget(t *testing.T) {
	log := &callLog{}
	target := &fakeTarget{log: log}
	reg := newRecordingRegistry(log)
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(target, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	require.NoError(t, reg.Launch(context.Background(), "Foo", map[string]any{"port": 6000.0, "ignored": true}))
	require.NoError(t, reg.Close(context.Background(), "Foo"))
	assert.Equal(t, []lifecycle.Options{{Port: 6000}}, target.opts)

	err := reg.Launch(context.Background(), "Foo", map[string]any{"port": "six thousand"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidOptions)
	assert.Len(t, target.opts, 1)
}

func TestAdapter_ShutdownUnregistersThenCloses(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(&fakeTarget{log: log}, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, []string{"register:Foo", "unregister:Foo", "close"}, log.get())
	assert.False(t, a.Registered())
	_, ok := reg.Lookup("Foo")
	assert.False(t, ok)

	// Idempotent / 幂等
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, []string{"register:Foo", "unregister:Foo", "close"}, log.get())
}

// gatedTarget blocks Launch until release is closed
// gatedTarget 在 release 关闭前阻塞 Launch
type gatedTarget struct {
	log     *callLog
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTarget) Launch(context.Context, lifecycle.Options) error {
	g.log.add("launch:start")
	close(g.entered)
	<-g.release
	g.log.add("launch:done")
	return nil
}

func (g *gatedTarget) Close(context.Context) error {
	g.log.add("close")
	return nil
}

func TestAdapter_OperationsAfterShutdownAreRejected(t *testing.T) {
	log := &callLog{}
	target := &fakeTarget{log: log}
	reg := newRecordingRegistry(log)
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(target, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	// Host holds the operations from before unregistration
	// 宿主持有注销前获取的操作
	entry, ok := reg.Lookup("Foo")
	require.True(t, ok)
	require.NoError(t, a.Shutdown(context.Background()))

	err := entry.Operations.Launch(context.Background(), map[string]any{"port": 6000.0})
	assert.ErrorIs(t, err, ErrAdapterClosed)
	assert.ErrorIs(t, entry.Operations.Close(context.Background()), ErrAdapterClosed)
	assert.Empty(t, target.opts)
	assert.Equal(t, []string{"register:Foo", "unregister:Foo", "close"}, log.get())
}

func TestAdapter_ShutdownWaitsForInFlightLaunch(t *testing.T) {
	log := &callLog{}
	target := &gatedTarget{log: log, entered: make(chan struct{}), release: make(chan struct{})}
	reg := newRecordingRegistry(log)
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(target, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	launched := make(chan error, 1)
	go func() {
		launched <- reg.Launch(context.Background(), "Foo", map[string]any{"port": 6000.0})
	}()
	<-target.entered

	shutdown := make(chan error, 1)
	go func() { shutdown <- a.Shutdown(context.Background()) }()
	require.Eventually(t, func() bool { return len(log.get()) == 3 }, time.Second, 5*time.Millisecond)

	// Close must not overtake the pending launch / Close 不能抢在进行中的启动之前
	assert.Never(t, func() bool { return len(shutdown) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	close(target.release)
	require.NoError(t, <-launched)
	require.NoError(t, <-shutdown)
	assert.Equal(t, []string{"register:Foo", "launch:start", "unregister:Foo", "launch:done", "close"}, log.get())
}

func TestAdapter_ShutdownIgnoresUnregisterError(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)
	reg.unregisterErr = errors.New("registry gone")
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(&fakeTarget{log: log}, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, []string{"register:Foo", "unregister:Foo", "close"}, log.get())
}

func TestAdapter_ShutdownReturnsCloseError(t *testing.T) {
	log := &callLog{}
	closeErr := errors.New("stop failed")
	reg := newRecordingRegistry(log)
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(&fakeTarget{log: log, closeErr: closeErr}, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	assert.ErrorIs(t, a.Shutdown(context.Background()), closeErr)
}

func TestAdapter_ShutdownBeforeResolution(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)
	pkgs := &blockingProvider{release: make(chan struct{}), info: packageinfo.Info{ID: "foo", Name: "Foo Simulator"}}
	a := NewAdapter(&fakeTarget{log: log}, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))

	require.NoError(t, a.Shutdown(context.Background()))
	waitReady(t, a)

	// Empty name unregistered, target closed, nothing registered afterwards
	// 注销空名称，关闭 target，之后不再注册
	assert.Equal(t, []string{"unregister:", "close"}, log.get())
	assert.Empty(t, reg.List())
	assert.False(t, a.Registered())
	assert.NoError(t, a.Err())
}

func TestAdapter_ResolutionCompletingAfterShutdownDoesNotRegister(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)

	// Provider that ignores cancellation and resolves only after shutdown
	// 忽略取消、仅在关闭后返回的 provider
	shutdownDone := make(chan struct{})
	pkgs := providerFunc(func(ctx context.Context, id string) (*packageinfo.Info, error) {
		<-shutdownDone
		return &packageinfo.Info{ID: id, Name: "Foo Simulator"}, nil
	})
	a := NewAdapter(&fakeTarget{log: log}, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
	close(shutdownDone)
	waitReady(t, a)

	assert.Equal(t, []string{"unregister:", "close"}, log.get())
	assert.Empty(t, reg.List())
}

func TestAdapter_ResolutionFailure(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)
	a := NewAdapter(&fakeTarget{log: log}, reg, packageinfo.NewStaticProvider(), "missing")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	assert.ErrorIs(t, a.Err(), packageinfo.ErrPackageNotFound)
	assert.False(t, a.Registered())
	assert.Empty(t, a.Name())
	assert.Empty(t, reg.List())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, []string{"unregister:", "close"}, log.get())
}

func TestAdapter_RegistrationFailure(t *testing.T) {
	log := &callLog{}
	reg := newRecordingRegistry(log)
	reg.registerErr = ErrAlreadyRegistered
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(&fakeTarget{log: log}, reg, pkgs, "foo")
	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)

	assert.ErrorIs(t, a.Err(), ErrAlreadyRegistered)
	assert.False(t, a.Registered())
	assert.Equal(t, "Foo", a.Name())
}

func TestAdapter_StartErrors(t *testing.T) {
	log := &callLog{}
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "foo", Name: "Foo Simulator"})
	a := NewAdapter(&fakeTarget{log: log}, newRecordingRegistry(log), pkgs, "foo")

	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAdapterStarted)
	waitReady(t, a)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAdapterClosed)
}

func TestAdapter_ShutdownWithoutStart(t *testing.T) {
	log := &callLog{}
	pkgs := &blockingProvider{release: make(chan struct{})}
	a := NewAdapter(&fakeTarget{log: log}, newRecordingRegistry(log), pkgs, "foo")

	require.NoError(t, a.Shutdown(context.Background()))
	waitReady(t, a)
	assert.Equal(t, 0, pkgs.calls)
	assert.Equal(t, []string{"unregister:", "close"}, log.get())
}

// TestAdapter_WithController drives a real controller through the catalog.
// TestAdapter_WithController 通过 catalog 驱动真实控制器。
func TestAdapter_WithController(t *testing.T) {
	var mu sync.Mutex
	var created, stopped []int
	factory := process.FactoryFunc(func(_ context.Context, cfg process.Config) (process.Handle, error) {
		mu.Lock()
		defer mu.Unlock()
		created = append(created, cfg.Port)
		return &stubHandle{port: cfg.Port, onStop: func(port int) {
			mu.Lock()
			defer mu.Unlock()
			stopped = append(stopped, port)
		}}, nil
	})
	controller := lifecycle.NewController(factory)
	catalog := NewCatalog()
	pkgs := packageinfo.NewStaticProvider(packageinfo.Info{ID: "fxos", Name: "Firefox OS Simulator", Version: "2.2"})
	a := NewAdapter(controller, catalog, pkgs, "fxos")

	require.NoError(t, a.Start(context.Background()))
	waitReady(t, a)
	require.Equal(t, "Firefox OS", a.Name())

	require.NoError(t, catalog.Launch(context.Background(), "Firefox OS", map[string]any{"port": 6000.0}))
	require.NoError(t, catalog.Launch(context.Background(), "Firefox OS", map[string]any{"port": 6001.0}))
	assert.Equal(t, 6001, controller.Status().Port)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, lifecycle.StateIdle, controller.State())
	assert.Empty(t, catalog.List())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{6000, 6001}, created)
	assert.Equal(t, []int{6000, 6001}, stopped)
}

type providerFunc func(ctx context.Context, id string) (*packageinfo.Info, error)

func (f providerFunc) Resolve(ctx context.Context, id string) (*packageinfo.Info, error) {
	return f(ctx, id)
}

type stubHandle struct {
	port   int
	onStop func(port int)
}

func (h *stubHandle) ID() string           { return "stub" }
func (h *stubHandle) Port() int            { return h.port }
func (h *stubHandle) PID() int             { return 1 }
func (h *stubHandle) StartedAt() time.Time { return time.Time{} }
func (h *stubHandle) Stop(context.Context) error {
	h.onStop(h.port)
	return nil
}
