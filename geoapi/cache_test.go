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
	"github.com/stretchr/testify/require"
)

func TestCacheHit(t *testing.T) {
	c := NewCache(time.Hour)
	c.Put("10.0.0.1", Location{Lat: 51.5, Lon: -0.1})

	loc, ok := c.Get("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, 51.5, loc.Lat)
	assert.Equal(t, -0.1, loc.Lon)

	_, ok = c.Get("10.0.0.2")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	now := time.Now()
	c := NewCache(time.Hour)
	c.now = func() time.Time { return now }

	c.Put("10.0.0.1", Location{Lat: 1, Lon: 2})

	_, ok := c.Get("10.0.0.1")
	require.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = c.Get("10.0.0.1")
	assert.False(t, ok)
}

func TestCacheRefresh(t *testing.T) {
	now := time.Now()
	c := NewCache(time.Hour)
	c.now = func() time.Time { return now }

	c.Put("10.0.0.1", Location{Lat: 1, Lon: 2})
	now = now.Add(50 * time.Minute)
	c.Put("10.0.0.1", Location{Lat: 3, Lon: 4})
	now = now.Add(50 * time.Minute)

	// Second Put restarted the TTL.
	loc, ok := c.Get("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, 3.0, loc.Lat)
}

func TestCachePurge(t *testing.T) {
	now := time.Now()
	c := NewCache(time.Hour)
	c.now = func() time.Time { return now }

	c.Put("10.0.0.1", Location{})
	now = now.Add(30 * time.Minute)
	c.Put("10.0.0.2", Location{})
	now = now.Add(45 * time.Minute)

	c.Purge()
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("10.0.0.2")
	assert.True(t, ok)
}
