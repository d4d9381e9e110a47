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

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=VALUE pairs from the named files into the process
// environment, before any configuration or service is constructed.  With
// no arguments it loads ".env" from the working directory.  A missing
// file is silently tolerated; values already present in the environment
// are never overridden.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, e := os.Stat(f); e != nil {
			if os.IsNotExist(e) {
				continue
			}
			return e
		}
		if e := godotenv.Load(f); e != nil {
			return e
		}
	}
	return nil
}
