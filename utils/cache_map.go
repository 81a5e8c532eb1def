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
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var CleanupInterval = 10 * time.Minute

// CacheMap is a concurrent map whose entries carry their own expiration, set at write time.
// Expired entries are never returned; they are swept lazily on writes once per CleanupInterval.
type CacheMap[T any] struct {
	cache       map[string]cacheValue[T]
	clock       clockwork.Clock
	cleanupTime time.Time
	lock        sync.RWMutex
}

func NewCache[T any]() *CacheMap[T] {
	return NewCacheWithClock[T](clockwork.NewRealClock())
}

func NewCacheWithClock[T any](clock clockwork.Clock) *CacheMap[T] {
	return &CacheMap[T]{
		cache:       make(map[string]cacheValue[T]),
		clock:       clock,
		cleanupTime: clock.Now().Add(CleanupInterval),
	}
}

func (c *CacheMap[T]) Put(key string, value T, expiration time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache[key] = cacheValue[T]{
		item:           value,
		expirationTime: c.clock.Now().Add(expiration),
	}
	c.cleanUpLocked()
}

func (c *CacheMap[T]) Get(key string) (T, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	value, ok := c.cache[key]
	if !ok || value.isExpired(c.clock.Now()) {
		var zeroValue T
		return zeroValue, false
	}

	return value.item, true
}

func (c *CacheMap[T]) ComputeIfAbsent(key string, computeFunc func() T, expiration time.Duration) T {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Now()
	if value, ok := c.cache[key]; ok && !value.isExpired(now) {
		return value.item
	}

	item := computeFunc()
	c.cache[key] = cacheValue[T]{
		item:           item,
		expirationTime: now.Add(expiration),
	}
	return item
}

func (c *CacheMap[T]) Remove(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.cache, key)
}

func (c *CacheMap[T]) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache = make(map[string]cacheValue[T])
	c.cleanupTime = c.clock.Now().Add(CleanupInterval)
}

// Entries returns a copy of every live entry.
func (c *CacheMap[T]) Entries() map[string]T {
	c.lock.RLock()
	defer c.lock.RUnlock()

	now := c.clock.Now()
	entryMap := make(map[string]T, len(c.cache))
	for key, value := range c.cache {
		if !value.isExpired(now) {
			entryMap[key] = value.item
		}
	}
	return entryMap
}

// Size counts stored entries, expired ones included.
func (c *CacheMap[T]) Size() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.cache)
}

func (c *CacheMap[T]) CleanUp() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.cleanUpLocked()
}

func (c *CacheMap[T]) cleanUpLocked() {
	now := c.clock.Now()
	if now.After(c.cleanupTime) {
		for key, value := range c.cache {
			if value.isExpired(now) {
				delete(c.cache, key)
			}
		}
		c.cleanupTime = now.Add(CleanupInterval)
	}
}

type cacheValue[T any] struct {
	item           T
	expirationTime time.Time
}

func (c cacheValue[T]) isExpired(now time.Time) bool {
	return !now.Before(c.expirationTime)
}

func (c cacheValue[T]) String() string {
	return fmt.Sprintf("CacheItem [item= %v, expirationTime= %s]", c.item, c.expirationTime.Format(time.RFC1123))
}
