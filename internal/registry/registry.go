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

// Package registry advertises the simulator to a host tool registry.
// registry 包负责向宿主工具注册表发布模拟器。
//
// This package provides:
// 此包提供：
// - Registry, the host registry contract / Registry，宿主注册表契约
// - Catalog, an in-memory Registry / Catalog，内存注册表
// - MCPRegistry, a Registry exposing entries as MCP tools / MCPRegistry，以 MCP 工具形式暴露条目
// - Adapter, which registers a controller under its package display name / Adapter，以包显示名称注册控制器
package registry

import (
	"context"
	"errors"
	"strings"
)

// Errors for registry operations
// 注册表操作的错误定义
var (
	// ErrAlreadyRegistered indicates the name is already registered.
	// ErrAlreadyRegistered 表示名称已被注册。
	ErrAlreadyRegistered = errors.New("registry: name already registered")
	// ErrNotRegistered indicates the name is not registered.
	// ErrNotRegistered 表示名称未注册。
	ErrNotRegistered = errors.New("registry: name not registered")
	// ErrInvalidName indicates an empty or unusable name.
	// ErrInvalidName 表示名称为空或不可用。
	ErrInvalidName = errors.New("registry: invalid name")
	// ErrInvalidOperations indicates missing launch or close operations.
	// ErrInvalidOperations 表示缺少启动或关闭操作。
	ErrInvalidOperations = errors.New("registry: launch and close operations are required")
)

// LaunchFunc starts or replaces the simulator with raw options.
// LaunchFunc 使用原始选项启动或替换模拟器。
type LaunchFunc func(ctx context.Context, options map[string]any) error

// CloseFunc stops the simulator.
// CloseFunc 停止模拟器。
type CloseFunc func(ctx context.Context) error

// Operations are the callbacks a registry entry exposes.
// Operations 是注册条目暴露的回调。
type Operations struct {
	Launch LaunchFunc
	Close  CloseFunc
}

// AppInfo is the static metadata of a registry entry.
// AppInfo 是注册条目的静态元数据。
type AppInfo struct {
	Label     string `json:"label"`
	PackageID string `json:"package_id,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Registry is a host tool registry.
// Registry 是宿主工具注册表。
type Registry interface {
	// Register adds an entry under name.
	// Register 以 name 注册条目。
	Register(name string, ops Operations, info AppInfo) error

	// Unregister removes the entry. Unknown or empty names are a no-op.
	// Unregister 移除条目，未知或空名称不做处理。
	Unregister(name string) error
}

// validateEntry checks a registration request
// validateEntry 校验注册请求
func validateEntry(name string, ops Operations) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if ops.Launch == nil || ops.Close == nil {
		return ErrInvalidOperations
	}
	return nil
}
