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

// Package geovisor provides a pure Go process supervision framework,
// built for deploying self-hosted API servers.  It replaces the usual
// pile of start/stop/update shell scripts with a single daemon that
// tracks liveness, restarts on crash, and serializes start and stop
// requests, so that PID file races cannot occur within one daemon.
//
// A Manager owns a set of Services.  Each Service wraps a Provider; the
// stock Provider is Process, which runs an operating system process
// detached from the controlling terminal, records its process id in a
// PID file, and appends its combined output to a log file under logs/.
// Services may declare an update pipeline (typically a version control
// pull followed by a release build); update steps are checked one by
// one, and a service is never restarted onto a broken build.
//
// The daemon (geovisord) exposes the manager over a small REST API, and
// the geovisor command provides both one-shot subcommands and a full
// screen terminal UI on top of that API.
package geovisor
