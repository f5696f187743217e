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
	"fmt"
	"sort"
	"sync"
)

// Entry is a registered simulator.
// Entry 是已注册的模拟器。
type Entry struct {
	Name       string
	Operations Operations
	Info       AppInfo
}

// Catalog is an in-memory Registry.
// Catalog 是内存中的 Registry 实现。
type Catalog struct {
	entries sync.Map // map[string]*Entry
}

// NewCatalog creates an empty Catalog.
// NewCatalog 创建空的 Catalog。
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register implements Registry.
func (c *Catalog) Register(name string, ops Operations, info AppInfo) error {
	if err := validateEntry(name, ops); err != nil {
		return err
	}
	entry := &Entry{Name: name, Operations: ops, Info: info}
	if _, loaded := c.entries.LoadOrStore(name, entry); loaded {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	return nil
}

// Unregister implements Registry.
func (c *Catalog) Unregister(name string) error {
	if name == "" {
		return nil
	}
	c.entries.Delete(name)
	return nil
}

// Lookup returns the entry registered under name.
// Lookup 返回以 name 注册的条目。
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	v, ok := c.entries.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// List returns all entries sorted by name.
// List 返回按名称排序的所有条目。
func (c *Catalog) List() []*Entry {
	var entries []*Entry
	c.entries.Range(func(_, v any) bool {
		entries = append(entries, v.(*Entry))
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Launch calls the launch operation of the named entry.
// Launch 调用指定条目的启动操作。
func (c *Catalog) Launch(ctx context.Context, name string, options map[string]any) error {
	entry, ok := c.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return entry.Operations.Launch(ctx, options)
}

// Close calls the close operation of the named entry.
// Close 调用指定条目的关闭操作。
func (c *Catalog) Close(ctx context.Context, name string) error {
	entry, ok := c.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return entry.Operations.Close(ctx)
}
