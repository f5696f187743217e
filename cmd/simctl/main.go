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

// Package main is the entry point for simctl.
// Package main 是 simctl 的入口点。
//
// simctl registers a single simulator instance with a host tool and
// manages its lifecycle on launch and close requests.
// simctl 将单个模拟器实例注册到宿主工具，并按启动与关闭请求管理其生命周期。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devsim/simctl/internal/config"
	"github.com/devsim/simctl/internal/logger"
)

// Build information, set via ldflags
// 构建信息，通过 ldflags 设置
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"

	// PackageID is the package the simulator is published under
	// PackageID 是模拟器发布所用的包 id
	PackageID = "fxos_simulator@mozilla.org"

	// PackageName is the built-in package name used without a manifest
	// PackageName 是未配置清单时使用的内置包名称
	PackageName = "Firefox OS Simulator"
)

// shutdownTimeout bounds the shutdown sequence
// shutdownTimeout 限制关闭流程的耗时
const shutdownTimeout = time.Minute

var (
	configFile string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simctl",
		Short: "Simulator lifecycle controller",
		Long: `simctl registers a single simulator with a host tool and starts or
stops it on request. At most one simulator process is alive at any time.

simctl 将单个模拟器注册到宿主工具，并按请求启动或停止模拟器。
任意时刻最多只有一个模拟器进程存活。`,
		SilenceUsage: true,
		RunE:         runSimctl,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path / 配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level / 覆盖日志级别")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Register the simulator and serve the host / 注册模拟器并服务宿主",
		RunE:  runSimctl,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information / 打印版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "simctl %s\n", Version)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands / 配置相关命令",
	}
	configPrintCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration / 打印生效的配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	configCmd.AddCommand(configPrintCmd)

	rootCmd.AddCommand(runCmd, versionCmd, configCmd)
	return rootCmd
}

// loadConfig loads and validates the configuration, applying flag overrides
// loadConfig 加载并校验配置，并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runSimctl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Close()

	// Setup signal handling / 设置信号处理
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the log level / SIGHUP 重新加载日志级别
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := reloadLogLevel(log); err != nil {
					log.Warn("Failed to reload log level", zap.Error(err))
				}
			}
		}
	}()

	svc, err := NewService(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	serveErr := svc.Serve(ctx)
	if ctx.Err() != nil {
		log.Info("Received shutdown signal")
	} else {
		log.Info("Host disconnected")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return serveErr
}

// reloadLogLevel re-reads the configuration and applies its log level
// reloadLogLevel 重新读取配置并应用其中的日志级别
func reloadLogLevel(log *logger.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if current := log.Level(); current != level {
		log.Info("Log level changed", zap.Stringer("from", current), zap.Stringer("to", level))
		log.SetLevel(level)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
