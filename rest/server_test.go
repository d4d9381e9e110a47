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
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/geovisor/geovisor"
)

type fakeP struct {
	name    string
	logger  *log.Logger
	notify  func()
	updates int
	upErr   error
	updater bool
}

func (p *fakeP) Name() string        { return p.name }
func (p *fakeP) Description() string { return "Fake Service" }
func (p *fakeP) Provides() []string  { return nil }
func (p *fakeP) Depends() []string   { return nil }
func (p *fakeP) Conflicts() []string { return nil }
func (p *fakeP) Start() error        { return nil }
func (p *fakeP) Stop()               {}
func (p *fakeP) Check() error        { return nil }

func (p *fakeP) SetProperty(n geovisor.PropertyName, v interface{}) error {
	switch n {
	case geovisor.PropLogger:
		if v, ok := v.(*log.Logger); ok {
			p.logger = v
			return nil
		}
		return geovisor.ErrBadPropType
	case geovisor.PropNotify:
		if v, ok := v.(func()); ok {
			p.notify = v
			return nil
		}
		return geovisor.ErrBadPropType
	}
	return geovisor.ErrBadPropName
}

func (p *fakeP) Property(n geovisor.PropertyName) (interface{}, error) {
	if n == geovisor.PropLogger {
		return p.logger, nil
	}
	return nil, geovisor.ErrBadPropName
}

func (p *fakeP) CanUpdate() bool {
	return p.updater
}

func (p *fakeP) Update() error {
	p.updates++
	return p.upErr
}

func withServer(t *testing.T, fn func(m *geovisor.Manager, c *Client)) func() {
	return func() {
		m := geovisor.NewManager("rest_test")
		m.StopMonitoring()
		srv := httptest.NewServer(NewHandler(m))
		Reset(func() {
			srv.Close()
			m.Shutdown()
		})
		c := NewClient(&http.Transport{}, srv.URL)
		fn(m, c)
	}
}

func TestServices(t *testing.T) {
	Convey("Listing services", t,
		withServer(t, func(m *geovisor.Manager, c *Client) {
			m.AddService(geovisor.NewService(&fakeP{name: "svc:a"}))
			m.AddService(geovisor.NewService(&fakeP{name: "svc:b"}))

			names, e := c.Services()
			So(e, ShouldBeNil)
			So(len(names), ShouldEqual, 2)
			So(names, ShouldContain, "svc:a")
			So(names, ShouldContain, "svc:b")
		}))
}

func TestGetService(t *testing.T) {
	Convey("Fetching one service", t,
		withServer(t, func(m *geovisor.Manager, c *Client) {
			m.AddService(geovisor.NewService(&fakeP{name: "svc:a"}))

			info, e := c.GetService("svc:a")
			So(e, ShouldBeNil)
			So(info, ShouldNotBeNil)
			So(info.Name, ShouldEqual, "svc:a")
			So(info.Description, ShouldEqual, "Fake Service")
			So(info.Enabled, ShouldBeFalse)
			So(info.CanUpdate, ShouldBeFalse)

			Convey("A missing service is a 404", func() {
				_, e := c.GetService("svc:nope")
				So(e, ShouldNotBeNil)
				re, ok := e.(*Error)
				So(ok, ShouldBeTrue)
				So(re.Code, ShouldEqual, http.StatusNotFound)
			})
		}))
}

func TestLifecycle(t *testing.T) {
	Convey("Enable, restart, disable over the wire", t,
		withServer(t, func(m *geovisor.Manager, c *Client) {
			m.AddService(geovisor.NewService(&fakeP{name: "svc:a"}))

			So(c.EnableService("svc:a"), ShouldBeNil)
			info, e := c.GetService("svc:a")
			So(e, ShouldBeNil)
			So(info.Enabled, ShouldBeTrue)
			So(info.Running, ShouldBeTrue)

			So(c.RestartService("svc:a"), ShouldBeNil)
			So(c.ClearService("svc:a"), ShouldBeNil)

			So(c.DisableService("svc:a"), ShouldBeNil)
			info, e = c.GetService("svc:a")
			So(e, ShouldBeNil)
			So(info.Enabled, ShouldBeFalse)
			So(info.Running, ShouldBeFalse)
		}))
}

func TestUpdateService(t *testing.T) {
	Convey("Updating over the wire", t,
		withServer(t, func(m *geovisor.Manager, c *Client) {
			p := &fakeP{name: "svc:up", updater: true}
			m.AddService(geovisor.NewService(p))
			m.AddService(geovisor.NewService(&fakeP{name: "svc:plain"}))

			So(c.UpdateService("svc:up"), ShouldBeNil)
			So(p.updates, ShouldEqual, 1)

			Convey("Services without a pipeline refuse", func() {
				e := c.UpdateService("svc:plain")
				So(e, ShouldNotBeNil)
				re, ok := e.(*Error)
				So(ok, ShouldBeTrue)
				So(re.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("A failing pipeline surfaces the error", func() {
				p.upErr = errors.New("fetch failed")
				e := c.UpdateService("svc:up")
				So(e, ShouldNotBeNil)
			})
		}))
}

func TestServiceLogOverWire(t *testing.T) {
	Convey("Service log over the wire", t,
		withServer(t, func(m *geovisor.Manager, c *Client) {
			m.AddService(geovisor.NewService(&fakeP{name: "svc:a"}))
			So(c.EnableService("svc:a"), ShouldBeNil)

			recs, e := c.GetServiceLog("svc:a")
			So(e, ShouldBeNil)
			So(len(recs), ShouldBeGreaterThan, 0)
		}))
}

func TestManagerInfo(t *testing.T) {
	Convey("Manager info over the wire", t,
		withServer(t, func(m *geovisor.Manager, c *Client) {
			info, e := c.GetManager()
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "rest_test")
			So(info.Serial, ShouldBeGreaterThan, 0)
		}))
}
