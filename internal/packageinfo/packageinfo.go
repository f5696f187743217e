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

// Package packageinfo resolves simulator package metadata.
// packageinfo 包负责解析模拟器包的元数据。
package packageinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrPackageNotFound indicates no package has the requested id
	// ErrPackageNotFound 表示没有对应 id 的包
	ErrPackageNotFound = errors.New("package not found")

	// ErrInvalidManifest indicates the manifest could not be read or parsed
	// ErrInvalidManifest 表示清单无法读取或解析
	ErrInvalidManifest = errors.New("invalid package manifest")
)

// SimulatorSuffix is stripped from package names to form the display name
// SimulatorSuffix 在生成显示名称时从包名中去除
const SimulatorSuffix = " Simulator"

// Info is the metadata of one package.
// Info 是单个包的元数据。
type Info struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Provider resolves package metadata by id.
// Provider 按 id 解析包元数据。
type Provider interface {
	Resolve(ctx context.Context, id string) (*Info, error)
}

// DisplayName derives the registry name from a package name: "Foo Simulator" becomes "Foo".
// DisplayName 由包名生成注册名称："Foo Simulator" 变为 "Foo"。
func DisplayName(name string) string {
	return strings.TrimSuffix(name, SimulatorSuffix)
}

// manifest is the on-disk layout of a package manifest
// manifest 是包清单的文件格式
type manifest struct {
	Packages []Info `yaml:"packages"`
}

// ManifestProvider resolves packages from a YAML manifest file.
// The file is read on every Resolve so edits are picked up without restart.
// ManifestProvider 从 YAML 清单文件解析包，每次 Resolve 都会重新读取文件。
type ManifestProvider struct {
	path string
}

// NewManifestProvider creates a ManifestProvider for path.
// NewManifestProvider 为 path 创建 ManifestProvider。
func NewManifestProvider(path string) *ManifestProvider {
	return &ManifestProvider{path: path}
}

// Resolve implements Provider.
func (p *ManifestProvider) Resolve(ctx context.Context, id string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, p.path, err)
	}

	for i := range m.Packages {
		if m.Packages[i].ID == id {
			info := m.Packages[i]
			return &info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
}

// StaticProvider resolves packages from memory. It is immutable after creation.
// StaticProvider 从内存中解析包，创建后不可修改。
type StaticProvider struct {
	packages map[string]Info
}

// NewStaticProvider creates a StaticProvider holding infos.
// NewStaticProvider 创建包含 infos 的 StaticProvider。
func NewStaticProvider(infos ...Info) *StaticProvider {
	p := &StaticProvider{packages: make(map[string]Info, len(infos))}
	for _, info := range infos {
		p.packages[info.ID] = info
	}
	return p
}

// Resolve implements Provider.
func (p *StaticProvider) Resolve(ctx context.Context, id string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, ok := p.packages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
	}
	return &info, nil
}
