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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/geovisor/geovisor"
)

// maxPollTime caps how long a single long poll may hold its request.
const maxPollTime = time.Minute * 5

// Handler wraps a Manager, adding http.Handler functionality.  All
// GET responses carry an Etag; callers can revalidate with If-None-Match,
// or long poll for a change with the PollEtagHeader/PollTimeHeader pair.
type Handler struct {
	m *geovisor.Manager
	r *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, etag string, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		if etag != "" {
			w.Header().Set("Etag", etag)
		}
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// pollTime extracts the requested long poll duration, zero when the
// request is an ordinary GET.
func pollTime(r *http.Request) time.Duration {
	if r.Header.Get(PollEtagHeader) == "" {
		return 0
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxPollTime {
		d = maxPollTime
	}
	return d
}

func serialEtag(serial int64) string {
	return strconv.FormatInt(serial, 16)
}

// notModified handles If-None-Match revalidation.  It returns true,
// after writing a 304, when the caller's Etag still matches.
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (h *Handler) getManager(w http.ResponseWriter, r *http.Request) {
	if d := pollTime(r); d > 0 {
		if old, e := strconv.ParseInt(r.Header.Get(PollEtagHeader),
			16, 64); e == nil {
			h.m.WatchSerial(old, d)
		}
	}
	mi := h.m.GetInfo()
	info := &ManagerInfo{
		Name:       mi.Name,
		Serial:     mi.Serial,
		CreateTime: mi.CreateTime,
		UpdateTime: mi.UpdateTime,
	}
	etag := serialEtag(mi.Serial)
	if notModified(w, r, etag) {
		return
	}
	h.writeJson(w, etag, info)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	old := int64(-1)
	if d := pollTime(r); d > 0 {
		if v, e := strconv.ParseInt(r.Header.Get(PollEtagHeader),
			16, 64); e == nil {
			old = h.m.WatchServices(v, d)
		}
	}
	if old == -1 {
		// An expired watch with a bogus old value returns the
		// current serial immediately.
		old = h.m.WatchServices(-1, 0)
	}
	svcs := h.m.Services()
	l := make([]string, 0, len(svcs))
	for _, svc := range svcs {
		l = append(l, svc.Name())
	}
	etag := serialEtag(old)
	if notModified(w, r, etag) {
		return
	}
	h.writeJson(w, etag, l)
}

func (h *Handler) findService(name string) (*geovisor.Service, *Error) {
	for _, svc := range h.m.Services() {
		if svc.Name() == name {
			return svc, nil
		}
	}
	return nil, &Error{http.StatusNotFound, "Service not found"}
}

// watchService waits until the service's serial differs from old, or the
// duration lapses, and returns the serial.  The manager has no per-service
// condition variable, so this rides the global serial.
func (h *Handler) watchService(svc *geovisor.Service, old int64, d time.Duration) int64 {
	deadline := time.Now().Add(d)
	for {
		cur := svc.Serial()
		if cur != old {
			return cur
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return cur
		}
		h.m.WatchSerial(h.m.Serial(), remain)
	}
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	svc, e := h.findService(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	serial := svc.Serial()
	if d := pollTime(r); d > 0 {
		if old, err := strconv.ParseInt(r.Header.Get(PollEtagHeader),
			16, 64); err == nil {
			serial = h.watchService(svc, old, d)
		}
	}
	info := &ServiceInfo{
		Name:        svc.Name(),
		Description: svc.Description(),
		Enabled:     svc.Enabled(),
		Running:     svc.Running(),
		Failed:      svc.Failed(),
		CanUpdate:   svc.CanUpdate(),
		Provides:    svc.Provides(),
		Depends:     svc.Depends(),
		Conflicts:   svc.Conflicts(),
	}
	info.Status, info.TimeStamp = svc.Status()
	etag := serialEtag(serial)
	if notModified(w, r, etag) {
		return
	}
	h.writeJson(w, etag, info)
}

func (h *Handler) enableService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	if svc, e := h.findService(name); e != nil {
		h.writeError(w, e)
	} else if err := svc.Enable(); err != nil {
		e = &Error{http.StatusBadRequest, err.Error()}
		h.writeError(w, e)
	} else {
		h.writeJson(w, "", ok)
	}
}

func (h *Handler) disableService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	if svc, e := h.findService(name); e != nil {
		h.writeError(w, e)
	} else if err := svc.Disable(); err != nil {
		e = &Error{http.StatusBadRequest, err.Error()}
		h.writeError(w, e)
	} else {
		h.writeJson(w, "", ok)
	}
}

func (h *Handler) restartService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	if svc, e := h.findService(name); e != nil {
		h.writeError(w, e)
	} else if err := svc.Restart(); err != nil {
		e = &Error{http.StatusBadRequest, err.Error()}
		h.writeError(w, e)
	} else {
		h.writeJson(w, "", ok)
	}
}

func (h *Handler) clearService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	if svc, e := h.findService(name); e != nil {
		h.writeError(w, e)
	} else {
		svc.Clear()
		h.writeJson(w, "", ok)
	}
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	svc, e := h.findService(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	if err := svc.Update(); err != nil {
		code := http.StatusBadRequest
		if err == geovisor.ErrUpdating {
			code = http.StatusConflict
		}
		h.writeError(w, &Error{code, err.Error()})
		return
	}
	h.writeJson(w, "", ok)
}

func (h *Handler) getServiceLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["service"]
	svc, e := h.findService(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	if d := pollTime(r); d > 0 {
		if old, err := strconv.ParseInt(r.Header.Get(PollEtagHeader),
			16, 64); err == nil {
			svc.WatchLog(old, d)
		}
	}
	recs, id := svc.GetLog(0)
	etag := serialEtag(id)
	if notModified(w, r, etag) {
		return
	}
	h.writeJson(w, etag, recs)
}

func (h *Handler) getManagerLog(w http.ResponseWriter, r *http.Request) {
	if d := pollTime(r); d > 0 {
		if old, e := strconv.ParseInt(r.Header.Get(PollEtagHeader),
			16, 64); e == nil {
			h.m.WatchLog(old, d)
		}
	}
	recs, id := h.m.GetLog(0)
	etag := serialEtag(id)
	if notModified(w, r, etag) {
		return
	}
	h.writeJson(w, etag, recs)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(m *geovisor.Manager) *Handler {
	r := mux.NewRouter()
	h := &Handler{m: m, r: r}
	r.HandleFunc("/", h.getManager).Methods("GET")
	r.HandleFunc("/log", h.getManagerLog).Methods("GET")
	r.HandleFunc("/services", h.listServices).Methods("GET")
	r.HandleFunc("/services/{service}", h.getService).Methods("GET")
	r.HandleFunc("/services/{service}/enable", h.enableService).Methods("POST")
	r.HandleFunc("/services/{service}/disable", h.disableService).Methods("POST")
	r.HandleFunc("/services/{service}/clear", h.clearService).Methods("POST")
	r.HandleFunc("/services/{service}/restart", h.restartService).Methods("POST")
	r.HandleFunc("/services/{service}/update", h.updateService).Methods("POST")
	r.HandleFunc("/services/{service}/log", h.getServiceLog).Methods("GET")
	return h
}
