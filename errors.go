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

package geovisor

import (
	"errors"
)

var (
	ErrNoManager    = errors.New("No manager for service")
	ErrConflict     = errors.New("Conflicting service enabled")
	ErrIsEnabled    = errors.New("Service is enabled")
	ErrNotRunning   = errors.New("Service is not running")
	ErrNoUpdater    = errors.New("Service has no update pipeline")
	ErrUpdating     = errors.New("Update already in progress")
	ErrBadPropType  = errors.New("Bad property type")
	ErrBadPropName  = errors.New("Bad property name")
	ErrBadPropValue = errors.New("Bad property value")
	ErrPropReadOnly = errors.New("Property not changeable")
	ErrRateLimited  = errors.New("Restarting too quickly")
	ErrNoPidfile    = errors.New("No PID file")
	ErrBadPidfile   = errors.New("PID file does not contain a valid pid")
)
