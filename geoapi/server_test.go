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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const geoBody = `{
	"considerIp": true,
	"wifiAccessPoints": [
		{"macAddress": "00:11:22:33:44:55", "signalStrength": -45},
		{"macAddress": "66:77:88:99:aa:bb", "signalStrength": -61}
	]
}`

// newUpstream returns a fake Geolocation API that counts calls.
func newUpstream(t *testing.T, status int) (*httptest.Server, *int64) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&calls, 1)
			require.Equal(t, "POST", r.Method)
			require.NotEmpty(t, r.URL.Query().Get("key"))

			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"location": {"lat": 48.8584, "lng": 2.2945},
				"accuracy": 20.5
			}`))
		}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestServer(t *testing.T, upstream string, ttlHours, quota int) *Server {
	cfg := &Config{
		Google: GoogleConfig{APIKey: "test-key", URL: upstream},
		Cache:  CacheConfig{TTLHours: ttlHours},
		Quota:  QuotaConfig{MaxRequestsPerDay: quota},
	}
	return NewServer(cfg, zap.NewNop())
}

func postGeo(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/geo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestGeoLookup(t *testing.T) {
	up, calls := newUpstream(t, http.StatusOK)
	s := newTestServer(t, up.URL, 12, 2)

	w := postGeo(s, geoBody)
	require.Equal(t, http.StatusOK, w.Code)

	var loc Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, 48.8584, loc.Lat)
	assert.Equal(t, 2.2945, loc.Lon)
	assert.EqualValues(t, 1, *calls)
}

func TestGeoCached(t *testing.T) {
	up, calls := newUpstream(t, http.StatusOK)
	s := newTestServer(t, up.URL, 12, 2)

	for i := 0; i < 5; i++ {
		w := postGeo(s, geoBody)
		require.Equal(t, http.StatusOK, w.Code)
	}
	// Only the first lookup goes upstream.
	assert.EqualValues(t, 1, *calls)
}

func TestGeoQuota(t *testing.T) {
	up, calls := newUpstream(t, http.StatusOK)
	// A zero TTL disables the cache, so every request is a lookup.
	s := newTestServer(t, up.URL, 0, 2)

	for i := 0; i < 2; i++ {
		w := postGeo(s, geoBody)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := postGeo(s, geoBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.EqualValues(t, 2, *calls)
}

func TestGeoUpstreamError(t *testing.T) {
	up, _ := newUpstream(t, http.StatusForbidden)
	s := newTestServer(t, up.URL, 12, 2)

	w := postGeo(s, geoBody)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGeoUpstreamDown(t *testing.T) {
	up, _ := newUpstream(t, http.StatusOK)
	url := up.URL
	up.Close()

	s := newTestServer(t, url, 12, 2)
	w := postGeo(s, geoBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGeoBadRequest(t *testing.T) {
	up, calls := newUpstream(t, http.StatusOK)
	s := newTestServer(t, up.URL, 12, 2)

	w := postGeo(s, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, 0, *calls)
}

func TestHealthz(t *testing.T) {
	up, _ := newUpstream(t, http.StatusOK)
	s := newTestServer(t, up.URL, 12, 2)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	up, _ := newUpstream(t, http.StatusOK)
	cfg := &Config{
		Google:    GoogleConfig{APIKey: "test-key", URL: up.URL},
		Cache:     CacheConfig{TTLHours: 12},
		Quota:     QuotaConfig{MaxRequestsPerDay: 100},
		RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Enabled: true},
	}
	s := NewServer(cfg, zap.NewNop())

	w := postGeo(s, geoBody)
	require.Equal(t, http.StatusOK, w.Code)

	// Burst exhausted; the limiter rejects before the handler runs.
	w = postGeo(s, geoBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
