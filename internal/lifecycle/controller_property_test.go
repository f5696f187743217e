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
	"testing"

	"pgregory.net/rapid"
)

// **Feature: simulator-lifecycle, Property 1: 单实例**
// For any sequence of launch and close calls, with creates and stops failing at random,
// at most one simulator exists at any time and the controller state matches a simple model.
// 对于任意启动/关闭调用序列（创建与停止随机失败），任意时刻最多存在一个模拟器，且状态与模型一致。
func TestProperty_AtMostOneInstance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFakeFactory()
		c := NewController(f)
		ctx := context.Background()

		running := false
		port := 0
		steps := rapid.IntRange(1, 40).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			f.createErr = nil
			if rapid.IntRange(0, 4).Draw(t, fmt.Sprintf("createFails%d", i)) == 0 {
				f.createErr = errors.New("create failed")
			}
			f.stopErr = nil
			if rapid.IntRange(0, 4).Draw(t, fmt.Sprintf("stopFails%d", i)) == 0 {
				f.stopErr = errors.New("stop failed")
			}

			before := len(f.Calls())
			if rapid.Bool().Draw(t, fmt.Sprintf("launch%d", i)) {
				p := rapid.IntRange(1024, 65535).Draw(t, fmt.Sprintf("port%d", i))
				stopFails := running && c.handle.(*fakeHandle).stopErr != nil
				err := c.Launch(ctx, Options{Port: p})

				calls := f.Calls()[before:]
				switch {
				case stopFails:
					// Stop failed: slot cleared, no create / 停止失败：槽位已清空，不创建
					if err == nil || len(calls) != 1 {
						t.Fatalf("relaunch with failing stop: err=%v calls=%v", err, calls)
					}
					running = false
				case f.createErr != nil:
					if err == nil {
						t.Fatalf("create failure not reported")
					}
					running = false
				default:
					if err != nil {
						t.Fatalf("unexpected launch error: %v", err)
					}
					running, port = true, p
				}
				// Stop always precedes create / 停止总在创建之前
				for j := 1; j < len(calls); j++ {
					if calls[j-1][:6] == "create" && calls[j][:4] == "stop" {
						t.Fatalf("create before stop in %v", calls)
					}
				}
			} else {
				wasRunning := running
				stopFails := running && c.handle.(*fakeHandle).stopErr != nil
				err := c.Close(ctx)
				if stopFails != (err != nil) {
					t.Fatalf("close error mismatch: stopFails=%v err=%v", stopFails, err)
				}
				if !wasRunning && len(f.Calls()) != before {
					t.Fatalf("close on idle contacted the factory: %v", f.Calls()[before:])
				}
				running = false
			}

			if f.maxLive.Load() > 1 {
				t.Fatalf("more than one simulator alive: %d", f.maxLive.Load())
			}
			st := c.Status()
			if running != (st.State == StateRunning) {
				t.Fatalf("state %s, model running=%v", st.State, running)
			}
			if running && st.Port != port {
				t.Fatalf("port %d, model %d", st.Port, port)
			}
		}
	})
}
