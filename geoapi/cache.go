// Copyright 2025 The Geovisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package geoapi

import (
	"sync"
	"time"
)

type cacheEntry struct {
	loc   Location
	stamp time.Time
}

// Cache remembers the last resolved location per client, so that a
// client polling for its position does not burn upstream quota.
type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]cacheEntry
	now func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl: ttl,
		m:   make(map[string]cacheEntry),
		now: time.Now,
	}
}

// Get returns the cached location for key, if one exists and has not
// expired.
func (c *Cache) Get(key string) (Location, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.stamp.Add(c.ttl)) {
		return Location{}, false
	}
	return e.loc, true
}

// Put stores the location for key, restarting its TTL.
func (c *Cache) Put(key string, loc Location) {
	c.mu.Lock()
	c.m[key] = cacheEntry{loc: loc, stamp: c.now()}
	c.mu.Unlock()
}

// Purge drops all expired entries.  Called periodically so that the
// map does not grow without bound.
func (c *Cache) Purge() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.m {
		if now.After(e.stamp.Add(c.ttl)) {
			delete(c.m, k)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
