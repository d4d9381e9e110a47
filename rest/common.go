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

package rest

import (
	"time"

	"github.com/geovisor/geovisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollEtagHeader carries the caller's last seen Etag on a long
	// poll; the server holds the request until the resource no longer
	// matches, or the PollTimeHeader seconds elapse.
	PollEtagHeader = "X-Geovisor-Poll-Etag"
	PollTimeHeader = "X-Geovisor-Poll-Seconds"
)

var ok struct{}

// LogRecord is the wire form of a single log line.
type LogRecord = geovisor.LogRecord

type ManagerInfo struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`

	etag string
}

type ServiceInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Running     bool      `json:"running"`
	Failed      bool      `json:"failed"`
	CanUpdate   bool      `json:"canUpdate"`
	Provides    []string  `json:"provides"`
	Depends     []string  `json:"depends"`
	Conflicts   []string  `json:"conflicts"`
	Status      string    `json:"status"`
	TimeStamp   time.Time `json:"tstamp"`

	etag string
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
