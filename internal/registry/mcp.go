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
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Tool name suffixes of a registered simulator
// 已注册模拟器的工具名后缀
const (
	LaunchToolSuffix = "_launch"
	CloseToolSuffix  = "_close"
	InfoToolSuffix   = "_info"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// ToolPrefix converts a display name into the tool name prefix: "Firefox OS" becomes "firefox_os".
// ToolPrefix 将显示名称转换为工具名前缀："Firefox OS" 变为 "firefox_os"。
func ToolPrefix(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

// MCPOption configures an MCPRegistry.
// MCPOption 用于配置 MCPRegistry。
type MCPOption func(*MCPRegistry)

// WithMCPLogger sets the registry logger.
// WithMCPLogger 设置注册表日志记录器。
func WithMCPLogger(logger *zap.Logger) MCPOption {
	return func(r *MCPRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultPort makes the launch tool's port optional, falling back to port.
// WithDefaultPort 使启动工具的 port 参数可选，缺省时使用 port。
func WithDefaultPort(port int) MCPOption {
	return func(r *MCPRegistry) {
		r.defaultPort = port
	}
}

// MCPRegistry exposes registered simulators as MCP tools.
// MCPRegistry 以 MCP 工具形式暴露已注册的模拟器。
type MCPRegistry struct {
	mcpServer   *server.MCPServer
	logger      *zap.Logger
	defaultPort int

	mu    sync.Mutex
	tools map[string][]string // name -> tool names
}

// NewMCPRegistry creates an MCPRegistry backed by a new MCP server.
// NewMCPRegistry 创建基于新 MCP 服务器的 MCPRegistry。
func NewMCPRegistry(name, version string, opts ...MCPOption) *MCPRegistry {
	r := &MCPRegistry{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(true)),
		logger:    zap.NewNop(),
		tools:     make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Server returns the underlying MCP server
// Server 返回底层 MCP 服务器
func (r *MCPRegistry) Server() *server.MCPServer {
	return r.mcpServer
}

// Register implements Registry by adding <prefix>_launch, <prefix>_close and <prefix>_info tools.
// Register 通过添加 <prefix>_launch、<prefix>_close 与 <prefix>_info 工具实现 Registry。
func (r *MCPRegistry) Register(name string, ops Operations, info AppInfo) error {
	if err := validateEntry(name, ops); err != nil {
		return err
	}
	prefix := ToolPrefix(name)
	if prefix == "" {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	for other := range r.tools {
		if ToolPrefix(other) == prefix {
			return fmt.Errorf("%w: %s collides with %s", ErrAlreadyRegistered, name, other)
		}
	}

	launchSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"port": map[string]interface{}{
				"type":        "number",
				"description": "TCP port for the simulator's remote debugger server",
			},
		},
	}
	if r.defaultPort > 0 {
		launchSchema.Properties["port"].(map[string]interface{})["default"] = r.defaultPort
	} else {
		launchSchema.Required = []string{"port"}
	}

	launchTool := prefix + LaunchToolSuffix
	closeTool := prefix + CloseToolSuffix
	infoTool := prefix + InfoToolSuffix

	r.mcpServer.AddTool(mcp.Tool{
		Name:        launchTool,
		Description: fmt.Sprintf("Launch the %s simulator. A running instance is closed first.", name),
		InputSchema: launchSchema,
	}, r.handleLaunch(name, ops.Launch))

	r.mcpServer.AddTool(mcp.Tool{
		Name:        closeTool,
		Description: fmt.Sprintf("Close the %s simulator if it is running.", name),
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, r.handleClose(name, ops.Close))

	r.mcpServer.AddTool(mcp.Tool{
		Name:        infoTool,
		Description: fmt.Sprintf("Describe the %s simulator package.", name),
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, r.handleInfo(info))

	r.tools[name] = []string{launchTool, closeTool, infoTool}
	r.logger.Info("Registered simulator tools",
		zap.String("name", name),
		zap.Strings("tools", r.tools[name]),
	)
	return nil
}

// Unregister implements Registry.
func (r *MCPRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tools, ok := r.tools[name]
	if !ok {
		return nil
	}
	delete(r.tools, name)
	r.mcpServer.DeleteTools(tools...)
	r.logger.Info("Unregistered simulator tools", zap.String("name", name))
	return nil
}

// Serve serves the registry over stdio until ctx is done or in reaches EOF.
// Serve 通过标准输入输出提供服务，直到 ctx 结束或输入 EOF。
func (r *MCPRegistry) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(r.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(r.logger))
	r.logger.Info("Serving MCP registry over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

func (r *MCPRegistry) handleLaunch(name string, launch LaunchFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		options := make(map[string]any)
		for k, v := range request.GetArguments() {
			options[k] = v
		}
		if _, ok := options["port"]; !ok && r.defaultPort > 0 {
			options["port"] = r.defaultPort
		}

		if err := launch(ctx, options); err != nil {
			r.logger.Warn("Simulator launch failed", zap.String("name", name), zap.Error(err))
			return errorResponse(fmt.Sprintf("launch %s: %v", name, err)), nil
		}
		return textResponse(fmt.Sprintf("%s simulator launched", name)), nil
	}
}

func (r *MCPRegistry) handleClose(name string, closeFn CloseFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := closeFn(ctx); err != nil {
			r.logger.Warn("Simulator close failed", zap.String("name", name), zap.Error(err))
			return errorResponse(fmt.Sprintf("close %s: %v", name, err)), nil
		}
		return textResponse(fmt.Sprintf("%s simulator closed", name)), nil
	}
}

func (r *MCPRegistry) handleInfo(info AppInfo) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(info)
		if err != nil {
			return errorResponse(err.Error()), nil
		}
		return textResponse(string(data)), nil
	}
}

// errorResponse creates an error response
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// textResponse creates a text response
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
