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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuotaLimit(t *testing.T) {
	q := NewQuota(2)

	assert.True(t, q.Allow("10.0.0.1"))
	assert.True(t, q.Allow("10.0.0.1"))
	assert.False(t, q.Allow("10.0.0.1"))

	// Other clients have their own budget.
	assert.True(t, q.Allow("10.0.0.2"))
}

func TestQuotaSlidingWindow(t *testing.T) {
	now := time.Now()
	q := NewQuota(2)
	q.now = func() time.Time { return now }

	assert.True(t, q.Allow("10.0.0.1"))
	now = now.Add(12 * time.Hour)
	assert.True(t, q.Allow("10.0.0.1"))
	assert.False(t, q.Allow("10.0.0.1"))

	// The first stamp falls out of the window; one slot opens up.
	now = now.Add(13 * time.Hour)
	assert.True(t, q.Allow("10.0.0.1"))
	assert.False(t, q.Allow("10.0.0.1"))
}

func TestQuotaPurge(t *testing.T) {
	now := time.Now()
	q := NewQuota(1)
	q.now = func() time.Time { return now }

	assert.True(t, q.Allow("10.0.0.1"))
	now = now.Add(25 * time.Hour)
	assert.True(t, q.Allow("10.0.0.2"))

	q.Purge()

	q.mu.Lock()
	_, gone := q.m["10.0.0.1"]
	_, kept := q.m["10.0.0.2"]
	q.mu.Unlock()

	assert.False(t, gone)
	assert.True(t, kept)
}
