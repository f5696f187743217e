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

// Package grpc provides the gRPC status service of simctl.
// grpc 包提供 simctl 的 gRPC 状态服务。
//
// The standard grpc.health.v1.Health service reports the simulator as SERVING while
// the controller holds a running instance and NOT_SERVING while it is idle.
// 标准 grpc.health.v1.Health 服务在控制器持有运行实例时报告 SERVING，空闲时报告 NOT_SERVING。
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/devsim/simctl/internal/lifecycle"
)

// Default configuration values for the status server
// 状态服务器的默认配置值
const (
	// DefaultAddr is the default listen address.
	// DefaultAddr 是默认监听地址。
	DefaultAddr = "127.0.0.1:9090"

	// SimulatorService is the health service name of the simulator.
	// SimulatorService 是模拟器的健康检查服务名。
	SimulatorService = "simctl.Simulator"

	// DefaultStopTimeout bounds the graceful stop before open streams are cut.
	// DefaultStopTimeout 是优雅停止的最长等待时间，超时后强制断开流。
	DefaultStopTimeout = 5 * time.Second
)

// Errors for gRPC server operations
// gRPC 服务器操作的错误定义
var (
	// ErrServerNotRunning indicates the server is not running.
	// ErrServerNotRunning 表示服务器未运行。
	ErrServerNotRunning = errors.New("grpc: server is not running")

	// ErrServerAlreadyRunning indicates the server is already running.
	// ErrServerAlreadyRunning 表示服务器已在运行。
	ErrServerAlreadyRunning = errors.New("grpc: server is already running")
)

// ServerConfig holds configuration for the status server.
// ServerConfig 保存状态服务器的配置。
type ServerConfig struct {
	// Addr is the host:port to listen on.
	// Addr 是监听的 host:port。
	Addr string

	// StopTimeout bounds the graceful stop.
	// StopTimeout 是优雅停止的最长等待时间。
	StopTimeout time.Duration
}

// Server is the gRPC status server.
// Server 是 gRPC 状态服务器。
type Server struct {
	config *ServerConfig
	health *health.Server
	logger *zap.Logger

	mu         sync.Mutex
	grpcServer *grpc.Server
	listener   net.Listener
	running    bool
	stopped    bool

	// stateMu guards simState and is never held across a stop
	// stateMu 保护 simState，停止过程中不持有
	stateMu  sync.Mutex
	simState lifecycle.State
}

// NewServer creates a new status server. The simulator starts as NOT_SERVING.
// NewServer 创建新的状态服务器，模拟器初始状态为 NOT_SERVING。
func NewServer(config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = &ServerConfig{}
	}

	// Set default values
	// 设置默认值
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	hs := health.NewServer()
	hs.SetServingStatus(SimulatorService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		config:   config,
		health:   hs,
		logger:   logger,
		simState: lifecycle.StateIdle,
	}
}

// Start listens on the configured address and serves in the background.
// Start 监听配置的地址并在后台提供服务。
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	if err := s.Serve(listener); err != nil {
		_ = listener.Close()
		return err
	}
	return nil
}

// Serve serves on listener in the background.
// Serve 在后台通过 listener 提供服务。
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	if s.stopped {
		// Resume marks everything SERVING; restore the simulator status
		// Resume 会将所有服务置为 SERVING，需恢复模拟器状态
		s.health.Resume()
		s.stateMu.Lock()
		s.health.SetServingStatus(SimulatorService, servingStatus(s.simState))
		s.stateMu.Unlock()
		s.stopped = false
	}

	s.listener = listener
	s.running = true
	s.logger.Info("gRPC status server starting", zap.String("addr", listener.Addr().String()))

	// Start serving in a goroutine
	// 在 goroutine 中启动服务
	gs := s.grpcServer
	go func() {
		if err := gs.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop stops the server, cutting open streams after the stop timeout.
// Stop 停止服务器，超过停止超时后强制断开流。
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping gRPC status server")

	// Watchers see NOT_SERVING before the connection goes away
	// 在连接断开前通知观察者 NOT_SERVING
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.StopTimeout):
		s.grpcServer.Stop()
		<-done
	}

	s.running = false
	s.stopped = true
	s.logger.Info("gRPC status server stopped")
	return nil
}

// IsRunning returns whether the server is running.
// IsRunning 返回服务器是否正在运行。
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound address while running, the configured one otherwise.
// Addr 运行时返回实际绑定地址，否则返回配置地址。
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// SetSimulatorState publishes the controller state.
// SetSimulatorState 发布控制器状态。
func (s *Server) SetSimulatorState(state lifecycle.State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.simState = state
	s.health.SetServingStatus(SimulatorService, servingStatus(state))
}

func servingStatus(state lifecycle.State) healthpb.HealthCheckResponse_ServingStatus {
	if state == lifecycle.StateRunning {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// OnControllerEvent is a lifecycle.EventHandler keeping the health status current.
// OnControllerEvent 是保持健康状态同步的 lifecycle.EventHandler。
func (s *Server) OnControllerEvent(event lifecycle.Event, st lifecycle.Status) {
	s.logger.Debug("Controller event",
		zap.String("event", string(event)),
		zap.String("state", string(st.State)),
		zap.Int("port", st.Port),
	)
	s.SetSimulatorState(st.State)
}

// buildServerOptions builds gRPC server options.
// buildServerOptions 构建 gRPC 服务器选项。
func (s *Server) buildServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			s.loggingUnaryInterceptor,
			s.recoveryUnaryInterceptor,
		),
		grpc.ChainStreamInterceptor(
			s.loggingStreamInterceptor,
			s.recoveryStreamInterceptor,
		),
	}
}

// loggingUnaryInterceptor logs unary RPC calls.
// loggingUnaryInterceptor 记录一元 RPC 调用。
func (s *Server) loggingUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.String("peer", peerAddr(ctx)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("gRPC unary call failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("gRPC unary call completed", fields...)
	}
	return resp, err
}

// recoveryUnaryInterceptor recovers from panics in unary handlers.
// recoveryUnaryInterceptor 从一元处理器的 panic 中恢复。
func (s *Server) recoveryUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("gRPC unary handler panic",
				zap.String("method", info.FullMethod),
				zap.Any("panic", r),
			)
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// loggingStreamInterceptor logs stream RPC calls.
// loggingStreamInterceptor 记录流式 RPC 调用。
func (s *Server) loggingStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	s.logger.Debug("gRPC stream started",
		zap.String("method", info.FullMethod),
		zap.String("peer", peerAddr(ss.Context())),
	)

	err := handler(srv, ss)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("gRPC stream ended with error", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("gRPC stream ended", fields...)
	}
	return err
}

// recoveryStreamInterceptor recovers from panics in stream handlers.
// recoveryStreamInterceptor 从流式处理器的 panic 中恢复。
func (s *Server) recoveryStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("gRPC stream handler panic",
				zap.String("method", info.FullMethod),
				zap.Any("panic", r),
			)
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(srv, ss)
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
