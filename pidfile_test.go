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

func TestPidfile(t *testing.T) {
	Convey("Given a pid file path", t, func() {
		dir, e := os.MkdirTemp("", "geovisor_test")
		So(e, ShouldBeNil)
		Reset(func() {
			os.RemoveAll(dir)
		})
		pf := Pidfile(filepath.Join(dir, "logs", "server.pid"))

		Convey("Reading a missing file fails", func() {
			_, e := pf.Read()
			So(e, ShouldEqual, ErrNoPidfile)
			So(pf.Alive(), ShouldBeFalse)
		})

		Convey("Write then read round trips", func() {
			So(pf.Write(12345), ShouldBeNil)
			pid, e := pf.Read()
			So(e, ShouldBeNil)
			So(pid, ShouldEqual, 12345)
		})

		Convey("Our own pid is alive", func() {
			So(pf.Write(os.Getpid()), ShouldBeNil)
			So(pf.Alive(), ShouldBeTrue)
		})

		Convey("Garbage content is rejected", func() {
			So(pf.Write(1), ShouldBeNil)
			e := os.WriteFile(string(pf), []byte("not a pid\n"), 0644)
			So(e, ShouldBeNil)
			_, e = pf.Read()
			So(e, ShouldEqual, ErrBadPidfile)
			So(pf.Alive(), ShouldBeFalse)
		})

		Convey("Remove tolerates absence", func() {
			So(pf.Remove(), ShouldBeNil)
			So(pf.Write(1), ShouldBeNil)
			So(pf.Remove(), ShouldBeNil)
			_, e := pf.Read()
			So(e, ShouldEqual, ErrNoPidfile)
		})
	})
}
