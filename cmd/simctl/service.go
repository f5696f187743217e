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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/devsim/simctl/internal/config"
	agrpc "github.com/devsim/simctl/internal/grpc"
	"github.com/devsim/simctl/internal/lifecycle"
	"github.com/devsim/simctl/internal/packageinfo"
	"github.com/devsim/simctl/internal/process"
	"github.com/devsim/simctl/internal/registry"
	"github.com/devsim/simctl/internal/telemetry"
)

// registryHost is a Registry that can be served to the host tool
// registryHost 是可对宿主工具提供服务的 Registry
type registryHost interface {
	registry.Registry
	Serve(ctx context.Context, in io.Reader, out io.Writer) error
}

// catalogHost serves an in-process catalog; there is nothing to serve, so it waits for ctx
// catalogHost 提供进程内 catalog 服务；无需对外服务，仅等待 ctx 结束
type catalogHost struct {
	*registry.Catalog
}

func (catalogHost) Serve(ctx context.Context, _ io.Reader, _ io.Writer) error {
	<-ctx.Done()
	return nil
}

// Service wires the controller to the host registry
// Service 将控制器接入宿主注册表
type Service struct {
	// config holds the simctl configuration
	// config 保存 simctl 配置
	config *config.Config

	logger    *zap.Logger
	telemetry *telemetry.Provider

	// controller owns the single simulator instance
	// controller 持有唯一的模拟器实例
	controller *lifecycle.Controller

	// host is the registry the simulator is advertised in
	// host 是发布模拟器的注册表
	host registryHost

	// catalog is set when the catalog transport is used
	// catalog 在使用 catalog 传输方式时设置
	catalog *registry.Catalog

	adapter *registry.Adapter

	// status is the optional gRPC status server
	// status 是可选的 gRPC 状态服务器
	status *agrpc.Server

	in  io.Reader
	out io.Writer

	// mu protects the running state
	// mu 保护运行状态
	mu      sync.Mutex
	running bool
}

// NewService creates a Service with all components initialized
// NewService 创建一个初始化所有组件的 Service
func NewService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tp, err := telemetry.New(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	// Create process factory / 创建进程工厂
	factory := process.NewExecFactory(process.ExecConfig{
		Binary:          cfg.Simulator.Binary,
		Args:            cfg.Simulator.Args,
		ProfileDir:      cfg.Simulator.ProfileDir,
		WorkDir:         cfg.Simulator.WorkDir,
		Env:             cfg.Simulator.Env,
		LogDir:          cfg.Simulator.LogDir,
		LogMaxSize:      cfg.Log.MaxSize,
		LogMaxBackups:   cfg.Log.MaxBackups,
		LogMaxAge:       cfg.Log.MaxAge,
		GracefulTimeout: cfg.Simulator.GracefulTimeout,
	}, process.WithLogger(logger.Named("process")))

	// Create controller / 创建控制器
	controller := lifecycle.NewController(factory,
		lifecycle.WithLogger(logger.Named("lifecycle")),
		lifecycle.WithTracer(tp.Tracer()),
	)

	s := &Service{
		config:     cfg,
		logger:     logger,
		telemetry:  tp,
		controller: controller,
		in:         os.Stdin,
		out:        os.Stdout,
	}

	// Create registry host / 创建注册表
	switch cfg.Registry.Transport {
	case config.TransportCatalog:
		s.catalog = registry.NewCatalog()
		s.host = catalogHost{s.catalog}
	default:
		s.host = registry.NewMCPRegistry(cfg.Registry.ServerName, Version,
			registry.WithMCPLogger(logger.Named("registry")),
			registry.WithDefaultPort(cfg.Simulator.DefaultPort),
		)
	}

	// Create status server / 创建状态服务器
	if cfg.Status.Enabled {
		s.status = agrpc.NewServer(&agrpc.ServerConfig{Addr: cfg.Status.Addr}, logger.Named("status"))
		controller.SetEventHandler(s.status.OnControllerEvent)
	}

	s.adapter = registry.NewAdapter(controller, s.host, packageProvider(cfg), packageID(cfg),
		registry.WithAdapterLogger(logger.Named("adapter")))
	return s, nil
}

// packageProvider returns the manifest provider, or the built-in package when none is configured
// packageProvider 返回清单 provider，未配置时返回内置包信息
func packageProvider(cfg *config.Config) packageinfo.Provider {
	if cfg.Package.Manifest != "" {
		return packageinfo.NewManifestProvider(cfg.Package.Manifest)
	}
	return packageinfo.NewStaticProvider(packageinfo.Info{
		ID:      packageID(cfg),
		Name:    PackageName,
		Version: Version,
	})
}

func packageID(cfg *config.Config) string {
	if cfg.Package.ID != "" {
		return cfg.Package.ID
	}
	return PackageID
}

// Start starts the status server and begins registration
// Start 启动状态服务器并开始注册
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("service is already running")
	}

	s.logger.Info("simctl starting",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("binary", s.config.Simulator.Binary),
		zap.String("transport", s.config.Registry.Transport),
		zap.Bool("tracing", s.telemetry.Enabled()),
	)
	s.logger.Debug("Effective configuration", zap.Stringer("config", s.config))

	// Step 1: Start status server
	// 步骤 1：启动状态服务器
	if s.status != nil {
		s.logger.Info("[1/2] Starting status server")
		if err := s.status.Start(ctx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	// Step 2: Resolve package and register
	// 步骤 2：解析包信息并注册
	s.logger.Info("[2/2] Registering simulator", zap.String("package_id", packageID(s.config)))
	if err := s.adapter.Start(ctx); err != nil {
		if s.status != nil {
			_ = s.status.Stop()
		}
		return fmt.Errorf("failed to start registration: %w", err)
	}

	s.running = true
	return nil
}

// Serve serves the registry host until ctx is done or the host disconnects
// Serve 提供注册表服务，直到 ctx 结束或宿主断开
func (s *Service) Serve(ctx context.Context) error {
	return s.host.Serve(ctx, s.in, s.out)
}

// Shutdown detaches from the registry, stops the simulator and releases resources
// Shutdown 从注册表移除、停止模拟器并释放资源
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Shutting down simctl", zap.Bool("registered", s.adapter.Registered()))

	// Step 1: Unregister and close the simulator
	// 步骤 1：注销并关闭模拟器
	err := s.adapter.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to close simulator", zap.Error(err))
	}

	// Step 2: Stop status server
	// 步骤 2：停止状态服务器
	if s.status != nil {
		if stopErr := s.status.Stop(); stopErr != nil {
			s.logger.Warn("Failed to stop status server", zap.Error(stopErr))
		}
	}

	// Step 3: Flush traces
	// 步骤 3：刷新链路数据
	if tpErr := s.telemetry.Shutdown(ctx); tpErr != nil {
		s.logger.Warn("Failed to shutdown telemetry", zap.Error(tpErr))
	}

	s.logger.Info("simctl shutdown complete")
	return err
}
