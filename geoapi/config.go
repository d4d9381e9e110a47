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
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all geolocation service configuration.
type Config struct {
	Server    ServerConfig
	Google    GoogleConfig
	Cache     CacheConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	Logging   LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"3000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// GoogleConfig holds upstream Geolocation API configuration.
type GoogleConfig struct {
	APIKey string `envconfig:"GOOGLE_API_KEY" required:"true"`
	URL    string `envconfig:"GOOGLE_GEOLOCATION_URL" default:"https://www.googleapis.com/geolocation/v1/geolocate"`
}

// CacheConfig holds per-client response cache configuration.
type CacheConfig struct {
	TTLHours int `envconfig:"CACHE_TTL_HOURS" default:"12"`
}

// QuotaConfig holds the per-client daily upstream quota.
type QuotaConfig struct {
	MaxRequestsPerDay int `envconfig:"MAX_REQUESTS_PER_DAY" default:"2"`
}

// RateLimitConfig holds burst protection configuration.  This is
// separate from the daily quota; it guards against request floods
// before they reach the cache or the quota accounting.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
