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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Pidfile is the path of a file holding a single decimal process id.
// The file is overwritten on every start, so it always names the most
// recently started instance.  Note that a pid can be recycled by the
// operating system; within a single daemon the manager lock serializes
// starts and stops so the window does not matter, but nothing prevents
// an unrelated process from reusing a pid after a crash.  That is the
// same contract the traditional logs/server.pid convention had.
type Pidfile string

// Write records pid, creating the parent directory if needed.
func (p Pidfile) Write(pid int) error {
	if dir := filepath.Dir(string(p)); dir != "." {
		if e := os.MkdirAll(dir, 0755); e != nil {
			return e
		}
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(pid)+"\n"), 0644)
}

// Read parses the recorded pid.  A missing file returns ErrNoPidfile;
// anything that is not a single positive integer returns ErrBadPidfile.
func (p Pidfile) Read() (int, error) {
	b, e := os.ReadFile(string(p))
	if e != nil {
		if os.IsNotExist(e) {
			return 0, ErrNoPidfile
		}
		return 0, e
	}
	pid, e := strconv.Atoi(strings.TrimSpace(string(b)))
	if e != nil || pid <= 0 {
		return 0, ErrBadPidfile
	}
	return pid, nil
}

// Alive reports whether the recorded pid names a live process.  This is
// the moral equivalent of the old "ps -p $PID" guard: a missing file, a
// garbage file, and a dead process all report false.
func (p Pidfile) Alive() bool {
	pid, e := p.Read()
	if e != nil {
		return false
	}
	proc, e := os.FindProcess(pid)
	if e != nil {
		return false
	}
	// Signal 0 performs the permission and existence checks only.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Remove unlinks the pidfile.  Removal of an already absent file is not
// an error.
func (p Pidfile) Remove() error {
	if e := os.Remove(string(p)); e != nil && !os.IsNotExist(e) {
		return e
	}
	return nil
}
