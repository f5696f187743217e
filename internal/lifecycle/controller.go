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

// Package lifecycle owns the single simulator instance.
// lifecycle 包持有唯一的模拟器实例。
//
// A Controller starts, replaces and stops the simulator on request and guarantees
// that at most one instance exists at any time.
// Controller 按请求启动、替换和停止模拟器，并保证任意时刻最多只有一个实例。
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/devsim/simctl/internal/process"
)

// ErrInvalidOptions indicates launch options could not be decoded
// ErrInvalidOptions 表示无法解析启动选项
var ErrInvalidOptions = errors.New("invalid launch options")

// State represents the controller state
// State 表示控制器状态
type State string

const (
	// StateIdle means no simulator is held / 未持有模拟器
	StateIdle State = "idle"
	// StateRunning means a simulator is held / 持有一个模拟器
	StateRunning State = "running"
)

// Event represents a controller transition
// Event 表示控制器状态转换事件
type Event string

const (
	EventLaunched     Event = "launched"
	EventClosed       Event = "closed"
	EventLaunchFailed Event = "launch_failed"
	EventStopFailed   Event = "stop_failed"
)

// EventHandler is notified after each transition. It must not call back into the controller.
// EventHandler 在每次状态转换后被通知，不得回调控制器。
type EventHandler func(event Event, status Status)

// Options are the launch options.
// Options 是启动选项。
type Options struct {
	// Port is the remote-debugger port / 远程调试端口
	Port int `json:"port" mapstructure:"port"`
}

// maxExactFloat is the largest magnitude a float64 holds without losing integer precision
// maxExactFloat 是 float64 不丢失整数精度的最大绝对值
const maxExactFloat = 1 << 53

// ParseOptions decodes raw launch options as received from a registry.
// Unknown keys are ignored and JSON numbers are accepted for port as long as
// they are whole.
// ParseOptions 解析来自注册表的原始启动选项，忽略未知键，port 接受整数值的 JSON 数字。
func ParseOptions(raw map[string]any) (Options, error) {
	var opts Options
	if len(raw) == 0 {
		return opts, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncKind(wholeNumberHook),
		Result:     &opts,
	})
	if err != nil {
		return Options{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return opts, nil
}

// wholeNumberHook rejects fractional or out-of-range floats decoded into ints
// wholeNumberHook 拒绝解码为整数的小数或超出范围的浮点数
func wholeNumberHook(from, to reflect.Kind, data any) (any, error) {
	if to != reflect.Int || (from != reflect.Float64 && from != reflect.Float32) {
		return data, nil
	}
	f := reflect.ValueOf(data).Float()
	if math.IsNaN(f) || math.Abs(f) > maxExactFloat || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}
	return int(f), nil
}

// Status is a snapshot of the controller.
// Status 是控制器的状态快照。
type Status struct {
	State      State     `json:"state"`
	InstanceID string    `json:"instance_id,omitempty"`
	Port       int       `json:"port,omitempty"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

func statusOf(h process.Handle) Status {
	if h == nil {
		return Status{State: StateIdle}
	}
	return Status{
		State:      StateRunning,
		InstanceID: h.ID(),
		Port:       h.Port(),
		PID:        h.PID(),
		StartedAt:  h.StartedAt(),
	}
}

// Option configures a Controller.
// Option 用于配置 Controller。
type Option func(*Controller)

// WithLogger sets the controller logger.
// WithLogger 设置控制器日志记录器。
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for transition spans.
// WithTracer 设置状态转换 span 使用的 tracer。
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Controller manages the single simulator instance.
// Controller 管理唯一的模拟器实例。
type Controller struct {
	factory process.Factory
	logger  *zap.Logger
	tracer  trace.Tracer

	// opMu serialises Launch and Close, including the wait on Stop
	// opMu 串行化 Launch 与 Close，包括等待 Stop 的过程
	opMu sync.Mutex

	// mu guards handle and onEvent / mu 保护 handle 与 onEvent
	mu      sync.RWMutex
	handle  process.Handle
	onEvent EventHandler
}

// NewController creates a new idle Controller.
// NewController 创建一个空闲的 Controller。
func NewController(factory process.Factory, opts ...Option) *Controller {
	c := &Controller{
		factory: factory,
		logger:  zap.NewNop(),
		tracer:  noop.NewTracerProvider().Tracer("lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetEventHandler sets the transition event handler
// SetEventHandler 设置状态转换事件处理器
func (c *Controller) SetEventHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = handler
}

// Status returns a snapshot of the controller. It never waits on a pending transition.
// Status 返回控制器快照，不会等待进行中的状态转换。
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return statusOf(c.handle)
}

// State returns the current state.
// State 返回当前状态。
func (c *Controller) State() State {
	return c.Status().State
}

// Launch starts a simulator. A running simulator is closed completely first.
// Launch 启动模拟器；若已有模拟器运行，先将其完全关闭。
//
// Launch returns once the new process has been started; the simulator may still be booting.
// Cancelling ctx does not abort a transition that has begun.
// Launch 在新进程启动后返回，此时模拟器可能仍在启动中。取消 ctx 不会中断已开始的转换。
func (c *Controller) Launch(ctx context.Context, opts Options) error {
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "lifecycle.launch",
		trace.WithAttributes(attribute.Int("simulator.port", opts.Port)))
	defer span.End()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	// Relaunch: close transition, then launch transition
	// 重新启动：先执行关闭转换，再执行启动转换
	if prev := c.claim(); prev != nil {
		span.AddEvent("close previous instance",
			trace.WithAttributes(attribute.String("simulator.previous_instance_id", prev.ID())))
		c.logger.Info("Closing running simulator before launch",
			zap.String("instance_id", prev.ID()),
			zap.Int("port", prev.Port()),
			zap.Int("new_port", opts.Port),
		)
		if err := c.stop(ctx, prev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "close previous instance")
			return err
		}
	}

	h, err := c.factory.Create(ctx, process.Config{Port: opts.Port})
	if err != nil {
		err = fmt.Errorf("launch simulator on port %d: %w", opts.Port, err)
		c.logger.Error("Failed to launch simulator", zap.Int("port", opts.Port), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "create")
		c.notify(EventLaunchFailed, Status{State: StateIdle, Port: opts.Port})
		return err
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	span.SetAttributes(attribute.String("simulator.instance_id", h.ID()))
	c.logger.Info("Simulator launched",
		zap.String("instance_id", h.ID()),
		zap.Int("port", h.Port()),
		zap.Int("pid", h.PID()),
	)
	c.notify(EventLaunched, statusOf(h))
	return nil
}

// Close stops the running simulator. Closing an idle controller is a no-op.
// Close 停止运行中的模拟器；控制器空闲时不做任何操作。
//
// The controller is idle after Close returns, whether or not the stop succeeded.
// 无论停止是否成功，Close 返回后控制器均为空闲状态。
func (c *Controller) Close(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev := c.claim()
	if prev == nil {
		return nil
	}

	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "lifecycle.close",
		trace.WithAttributes(
			attribute.String("simulator.instance_id", prev.ID()),
			attribute.Int("simulator.port", prev.Port()),
		))
	defer span.End()

	if err := c.stop(ctx, prev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stop")
		return err
	}
	return nil
}

// claim takes the handle out of the controller
// claim 从控制器中取出句柄
func (c *Controller) claim() process.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handle
	c.handle = nil
	return h
}

// stop stops a claimed handle and waits for it to settle
// stop 停止已取出的句柄并等待其完成
func (c *Controller) stop(ctx context.Context, h process.Handle) error {
	st := statusOf(h)
	if err := h.Stop(ctx); err != nil {
		err = fmt.Errorf("stop simulator %s: %w", h.ID(), err)
		c.logger.Error("Failed to stop simulator", zap.String("instance_id", h.ID()), zap.Error(err))
		st.State = StateIdle
		c.notify(EventStopFailed, st)
		return err
	}
	c.logger.Info("Simulator closed", zap.String("instance_id", h.ID()), zap.Int("port", h.Port()))
	st.State = StateIdle
	c.notify(EventClosed, st)
	return nil
}

func (c *Controller) notify(event Event, st Status) {
	c.mu.RLock()
	handler := c.onEvent
	c.mu.RUnlock()
	if handler != nil {
		handler(event, st)
	}
}
