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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadEnv(t *testing.T) {
	Convey("Given an env file", t, func() {
		dir, e := os.MkdirTemp("", "geovisor_test")
		So(e, ShouldBeNil)
		Reset(func() {
			os.RemoveAll(dir)
			os.Unsetenv("GEOVISOR_TEST_KEY")
			os.Unsetenv("GEOVISOR_TEST_KEEP")
		})
		path := filepath.Join(dir, ".env")
		e = os.WriteFile(path, []byte(
			"GEOVISOR_TEST_KEY=fromfile\n"+
				"GEOVISOR_TEST_KEEP=fromfile\n"), 0644)
		So(e, ShouldBeNil)

		Convey("Values load into the environment", func() {
			So(LoadEnv(path), ShouldBeNil)
			So(os.Getenv("GEOVISOR_TEST_KEY"),
				ShouldEqual, "fromfile")
		})

		Convey("Existing values are not overridden", func() {
			os.Setenv("GEOVISOR_TEST_KEEP", "preset")
			So(LoadEnv(path), ShouldBeNil)
			So(os.Getenv("GEOVISOR_TEST_KEEP"),
				ShouldEqual, "preset")
		})

		Convey("A missing file is tolerated", func() {
			So(LoadEnv(filepath.Join(dir, "nope.env")),
				ShouldBeNil)
		})
	})
}
