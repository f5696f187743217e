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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devsim/simctl/internal/process"
)

// fakeFactory records every Create and Stop in call order and tracks live handles.
// fakeFactory 按调用顺序记录 Create 与 Stop，并跟踪存活句柄数。
type fakeFactory struct {
	mu        sync.Mutex
	calls     []string
	seq       int
	live      atomic.Int32
	maxLive   atomic.Int32
	createErr error

	// stopErr is returned by handles created while it is set
	// stopErr 由设置期间创建的句柄返回
	stopErr error

	// stopGate, when non-nil, blocks every Stop until it is closed
	// stopGate 非空时阻塞所有 Stop 直到其被关闭
	stopGate chan struct{}

	// stopStarted receives the id of a handle whose Stop has begun
	// stopStarted 接收已开始 Stop 的句柄 id
	stopStarted chan string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{}
}

func (f *fakeFactory) Create(_ context.Context, cfg process.Config) (process.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("create:%d", cfg.Port))
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	n := f.live.Add(1)
	for {
		m := f.maxLive.Load()
		if n <= m || f.maxLive.CompareAndSwap(m, n) {
			break
		}
	}
	return &fakeHandle{
		factory:   f,
		id:        fmt.Sprintf("sim-%d", f.seq),
		port:      cfg.Port,
		pid:       1000 + f.seq,
		startedAt: time.Now(),
		stopErr:   f.stopErr,
		gate:      f.stopGate,
	}, nil
}

func (f *fakeFactory) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeFactory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeHandle struct {
	factory   *fakeFactory
	id        string
	port      int
	pid       int
	startedAt time.Time
	stopErr   error
	gate      chan struct{}
	stopped   atomic.Bool
}

func (h *fakeHandle) ID() string           { return h.id }
func (h *fakeHandle) Port() int            { return h.port }
func (h *fakeHandle) PID() int             { return h.pid }
func (h *fakeHandle) StartedAt() time.Time { return h.startedAt }

func (h *fakeHandle) Stop(ctx context.Context) error {
	if h.stopped.Swap(true) {
		return errors.New("handle stopped twice")
	}
	if h.factory.stopStarted != nil {
		h.factory.stopStarted <- h.id
	}
	if h.gate != nil {
		<-h.gate
	}
	h.factory.record("stop:" + h.id)
	h.factory.live.Add(-1)
	return h.stopErr
}
