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

// Package geoapi implements a caching, quota enforcing proxy in front
// of the Google Geolocation API.  Clients POST their observed WiFi
// access points to /geo and get back a lat/lon pair.  Responses are
// cached per client IP, and lookups that miss the cache are subject to
// a daily per-IP quota.
package geoapi

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server ties the cache, quota, and resolver together behind a gin
// engine.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	cache    *Cache
	quota    *Quota
	resolver *Resolver
	engine   *gin.Engine
}

func NewServer(cfg *Config, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		log:      logger,
		cache:    NewCache(time.Duration(cfg.Cache.TTLHours) * time.Hour),
		quota:    NewQuota(cfg.Quota.MaxRequestsPerDay),
		resolver: NewResolver(cfg.Google),
	}

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	if cfg.RateLimit.Enabled {
		e.Use(rateLimit(cfg.RateLimit))
	}

	e.POST("/geo", s.handleGeo)
	e.GET("/healthz", s.handleHealth)

	s.engine = e
	return s
}

// Handler exposes the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.  Purging of stale cache and
// quota entries happens on the side.
func (s *Server) Run(addr string) error {
	go s.purgeLoop()
	s.log.Info("geolocation service listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) purgeLoop() {
	for {
		time.Sleep(time.Hour)
		s.cache.Purge()
		s.quota.Purge()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGeo(c *gin.Context) {
	ip := c.ClientIP()

	var req GeoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if loc, ok := s.cache.Get(ip); ok {
		s.log.Info("cache hit", zap.String("ip", ip))
		c.JSON(http.StatusOK, loc)
		return
	}

	if !s.quota.Allow(ip) {
		s.log.Error("rate limit exceeded", zap.String("ip", ip))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	s.log.Info("calling Google API",
		zap.String("ip", ip),
		zap.Int("accessPoints", len(req.WifiAccessPoints)))

	loc, err := s.resolver.Resolve(c.Request.Context(), &req)
	if err != nil {
		var ue *ErrUpstream
		if errors.As(err, &ue) {
			s.log.Error("Google API error",
				zap.String("ip", ip), zap.String("status", ue.Status))
			c.JSON(http.StatusBadGateway, gin.H{"error": ue.Error()})
			return
		}
		s.log.Error("request failed",
			zap.String("ip", ip), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.log.Info("success", zap.String("ip", ip),
		zap.Float64("lat", loc.Lat), zap.Float64("lon", loc.Lon))

	s.cache.Put(ip, loc)
	c.JSON(http.StatusOK, loc)
}

// rateLimit creates a per-IP burst protection middleware.
func rateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(
				rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			limiters[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
