//go:build windows
// +build windows

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

package process

import (
	"errors"
	"os"
	"os/exec"
)

// setProcGroupAttr is a no-op on Windows
// setProcGroupAttr 在 Windows 上不做处理
func setProcGroupAttr(cmd *exec.Cmd) {}

// terminateGroup kills the process; Windows has no SIGTERM
// terminateGroup 直接终止进程；Windows 没有 SIGTERM
func terminateGroup(cmd *exec.Cmd) error {
	return killGroup(cmd)
}

// killGroup kills the process
// killGroup 终止进程
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
