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

// Command geoapid runs the geolocation proxy service.  Configuration
// comes from the environment, optionally seeded from a .env file:
//
//	GOOGLE_API_KEY       - upstream API key (required)
//	CACHE_TTL_HOURS      - per-client cache lifetime (default 12)
//	MAX_REQUESTS_PER_DAY - per-client upstream quota (default 2)
//	PORT                 - listen port (default 3000)
//	LOG_LEVEL            - zap level (default info)
//
// The service is normally run under geovisord, which captures its
// stdout into the service log.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/geovisor/geovisor"
	"github.com/geovisor/geovisor/geoapi"
)

func main() {
	envFile := flag.String("env", ".env", "environment file")
	flag.Parse()

	if err := geovisor.LoadEnv(*envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := geoapi.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := geoapi.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	srv := geoapi.NewServer(cfg, logger)
	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Fatal("server error", zap.Error(err))
	}
}
