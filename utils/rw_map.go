/*
  Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

  Licensed under the Apache License, Version 2.0 (the "License").
  You may not use this file except in compliance with the License.
  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

  Unless required by applicable law or agreed to in writing, software
  distributed under the License is distributed on an "AS IS" BASIS,
  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
  See the License for the specific language governing permissions and
  limitations under the License.
*/

package utils

import (
	"maps"
	"sync"
)

// RWMap is a string keyed map guarded by a read-write lock. It holds long lived per-cluster and
// per-endpoint state such as topology monitors and tracked connections.
type RWMap[T any] struct {
	lock    sync.RWMutex
	entries map[string]T
}

func NewRWMap[T any]() *RWMap[T] {
	return &RWMap[T]{entries: map[string]T{}}
}

func (m *RWMap[T]) Put(key string, value T) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries[key] = value
}

func (m *RWMap[T]) Get(key string) (T, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	value, ok := m.entries[key]
	return value, ok
}

// ComputeIfAbsent returns the value under key, creating it with create while holding the write
// lock so concurrent callers share one value.
func (m *RWMap[T]) ComputeIfAbsent(key string, create func() T) T {
	if value, ok := m.Get(key); ok {
		return value
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if value, ok := m.entries[key]; ok {
		return value
	}
	value := create()
	m.entries[key] = value
	return value
}

func (m *RWMap[T]) Remove(key string) (T, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	value, ok := m.entries[key]
	delete(m.entries, key)
	return value, ok
}

func (m *RWMap[T]) Clear() {
	m.lock.Lock()
	defer m.lock.Unlock()
	clear(m.entries)
}

// GetAllEntries returns a snapshot; changing it does not affect the map.
func (m *RWMap[T]) GetAllEntries() map[string]T {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return maps.Clone(m.entries)
}

func (m *RWMap[T]) Size() int {
	if m == nil {
		return 0
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.entries)
}
