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

// Quota enforces a per-client limit on upstream lookups over a sliding
// 24 hour window.  Cache hits do not count against the quota.
type Quota struct {
	mu    sync.Mutex
	limit int
	m     map[string][]time.Time
	now   func() time.Time
}

func NewQuota(limit int) *Quota {
	return &Quota{
		limit: limit,
		m:     make(map[string][]time.Time),
		now:   time.Now,
	}
}

// Allow records an upstream lookup for key if the client is under its
// daily limit, and reports whether the lookup may proceed.
func (q *Quota) Allow(key string) bool {
	now := q.now()
	cutoff := now.Add(-24 * time.Hour)

	q.mu.Lock()
	defer q.mu.Unlock()

	stamps := q.m[key]
	live := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= q.limit {
		q.m[key] = live
		return false
	}
	q.m[key] = append(live, now)
	return true
}

// Purge drops clients whose whole window has expired.
func (q *Quota) Purge() {
	cutoff := q.now().Add(-24 * time.Hour)
	q.mu.Lock()
	for k, stamps := range q.m {
		n := 0
		for _, t := range stamps {
			if t.After(cutoff) {
				n++
			}
		}
		if n == 0 {
			delete(q.m, k)
		}
	}
	q.mu.Unlock()
}
