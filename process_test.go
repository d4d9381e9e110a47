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

//go:build !windows

// The test suite relies pretty heavily on a process_test.sh script that is
// bundled, but is pretty specific to POSIX systems.  Implementing a suitable
// test script for other systems is left as an exercise for the reader.

package geovisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestProcessStartStop(t *testing.T) {
	Convey("Test start/stop of a new process", t, func() {
		m := NewManager("TestProcessStartStop")
		SetTestLogger(t, m)
		s1 := NewProcess("ProcessStartStop:S1", &exec.Cmd{
			Path: "process_test.sh",
			Args: []string{"process_test.sh", "3600"},
		})
		So(s1, ShouldNotBeNil)

		m.AddService(s1)
		So(s1.Enabled(), ShouldBeFalse)
		So(s1.Running(), ShouldBeFalse)
		e := s1.Enable()
		So(e, ShouldBeNil)
		So(s1.Enabled(), ShouldBeTrue)
		So(s1.Running(), ShouldBeTrue)

		time.Sleep(time.Millisecond * 10)

		e = s1.Disable()
		So(e, ShouldBeNil)
		So(s1.Enabled(), ShouldBeFalse)
		So(s1.Running(), ShouldBeFalse)

		time.Sleep(time.Millisecond * 10)

		m.Shutdown()
	})
}

func TestProcessRestart(t *testing.T) {
	Convey("Test restart of a process", t, func() {
		m := NewManager("TestProcessRestart")
		SetTestLogger(t, m)
		s1 := NewProcess("ProcessRestart:S1", &exec.Cmd{
			Path: "process_test.sh",
			Args: []string{"process_test.sh", "3600"},
		})
		m.AddService(s1)
		So(s1.Enable(), ShouldBeNil)
		So(s1.Running(), ShouldBeTrue)

		time.Sleep(time.Millisecond * 10)

		// A second start needs a fresh command, this catches reuse
		// of a waited-on exec.Cmd.
		So(s1.Restart(), ShouldBeNil)
		So(s1.Running(), ShouldBeTrue)
		So(s1.Failed(), ShouldBeFalse)

		m.Shutdown()
	})
}

func TestProcessFail(t *testing.T) {
	Convey("Test a failing process", t, func() {
		m := NewManager("TestProcessFail")
		SetTestLogger(t, m)
		s1 := NewProcess("ProcessFail:S1", &exec.Cmd{
			Path: "process_test.sh",
			Args: []string{"process_test.sh", "fail"},
		})
		So(s1, ShouldNotBeNil)
		m.AddService(s1)
		m.StopMonitoring()
		e := s1.Enable()
		So(e, ShouldBeNil)
		So(s1.Enabled(), ShouldBeTrue)
		time.Sleep(time.Millisecond * 10)
		e = s1.Check()
		So(e, ShouldNotBeNil)
		So(s1.Enabled(), ShouldBeTrue)
		So(s1.Failed(), ShouldBeTrue)
		So(s1.Running(), ShouldBeFalse)
	})
}

func TestProcessFromManifest(t *testing.T) {
	Convey("Test process from a manifest", t, func() {
		mydir, _ := os.Getwd()
		exname := filepath.Join(mydir, "process_test.sh")
		dir, e := os.MkdirTemp("", "geovisor_test")
		So(e, ShouldBeNil)
		Reset(func() {
			os.RemoveAll(dir)
		})
		manifest := ProcessManifest{
			Name:        "manifest:S1",
			Description: "A sample description",
			Directory:   dir,
			Command:     []string{exname, "checkwd", dir},
			FailOnExit:  false,
			Provides:    []string{"testmanifest"},
		}

		m := NewManager("TestProcessFromManifest")
		SetTestLogger(t, m)
		s1 := NewProcessFromManifest(manifest)
		So(s1, ShouldNotBeNil)

		m.AddService(s1)
		So(s1.Enabled(), ShouldBeFalse)
		So(s1.Running(), ShouldBeFalse)
		e = s1.Enable()
		So(e, ShouldBeNil)
		So(s1.Enabled(), ShouldBeTrue)

		time.Sleep(time.Millisecond * 100)
		So(s1.Failed(), ShouldBeFalse)

		Convey("The pid file names a live process", func() {
			pf := Pidfile(filepath.Join(dir, "logs", "manifest.pid"))
			pid, e := pf.Read()
			So(e, ShouldBeNil)
			So(pid, ShouldBeGreaterThan, 0)
			So(pf.Alive(), ShouldBeTrue)
		})

		e = s1.Disable()
		So(e, ShouldBeNil)
		So(s1.Enabled(), ShouldBeFalse)
		So(s1.Running(), ShouldBeFalse)

		time.Sleep(time.Millisecond * 10)

		Convey("The pid file is gone after stop", func() {
			pf := Pidfile(filepath.Join(dir, "logs", "manifest.pid"))
			_, e := pf.Read()
			So(e, ShouldEqual, ErrNoPidfile)
		})

		m.Shutdown()
	})
}

func TestProcessLogFile(t *testing.T) {
	Convey("Process output lands in the log file", t, func() {
		mydir, _ := os.Getwd()
		exname := filepath.Join(mydir, "process_test.sh")
		dir, e := os.MkdirTemp("", "geovisor_test")
		So(e, ShouldBeNil)
		Reset(func() {
			os.RemoveAll(dir)
		})
		manifest := ProcessManifest{
			Name:      "logged:S1",
			Directory: dir,
			Command:   []string{exname, "echo", "hello from child"},
		}
		m := NewManager("TestProcessLogFile")
		SetTestLogger(t, m)
		s1 := NewProcessFromManifest(manifest)
		m.AddService(s1)
		m.StopMonitoring()
		So(s1.Enable(), ShouldBeNil)

		time.Sleep(time.Millisecond * 100)

		b, e := os.ReadFile(filepath.Join(dir, "logs", "logged.log"))
		So(e, ShouldBeNil)
		So(string(b), ShouldContainSubstring, "hello from child")

		m.Shutdown()
	})
}

func TestProcessUpdate(t *testing.T) {
	Convey("Update pipeline runs fetch then build", t, func() {
		dir, e := os.MkdirTemp("", "geovisor_test")
		So(e, ShouldBeNil)
		Reset(func() {
			os.RemoveAll(dir)
		})
		mydir, _ := os.Getwd()
		exname := filepath.Join(mydir, "process_test.sh")
		manifest := ProcessManifest{
			Name:       "updatable:S1",
			Directory:  dir,
			Command:    []string{exname, "3600"},
			UpdateCmd:  []string{"/bin/sh", "-c", "echo fetched > fetched.txt"},
			BuildCmd:   []string{"/bin/sh", "-c", "echo built > built.txt"},
			UpdateTime: Duration(time.Minute),
		}
		m := NewManager("TestProcessUpdate")
		SetTestLogger(t, m)
		s1 := NewProcessFromManifest(manifest)
		m.AddService(s1)
		So(s1.CanUpdate(), ShouldBeTrue)
		So(s1.Enable(), ShouldBeNil)
		So(s1.Running(), ShouldBeTrue)

		e = s1.Update()
		So(e, ShouldBeNil)
		So(s1.Running(), ShouldBeTrue)

		_, e = os.Stat(filepath.Join(dir, "fetched.txt"))
		So(e, ShouldBeNil)
		_, e = os.Stat(filepath.Join(dir, "built.txt"))
		So(e, ShouldBeNil)

		Convey("A failing fetch aborts before the build", func() {
			s1.SetProperty(PropProcessUpdateCmd,
				exec.Command("/bin/sh", "-c", "exit 1"))
			s1.SetProperty(PropProcessBuildCmd,
				exec.Command("/bin/sh", "-c",
					"echo again > built2.txt"))
			e := s1.Update()
			So(e, ShouldNotBeNil)
			So(s1.Running(), ShouldBeTrue)
			_, e = os.Stat(filepath.Join(dir, "built2.txt"))
			So(os.IsNotExist(e), ShouldBeTrue)
		})

		m.Shutdown()
	})
}
