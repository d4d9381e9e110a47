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

// Command geovisord supervises the processes described by the JSON
// manifests in <dir>/services.  It records its own pid in
// <dir>/logs/geovisord.pid, loads a .env file before anything else, and
// serves the REST control API.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"

	"github.com/geovisor/geovisor"
	"github.com/geovisor/geovisor/rest"
)

var addr string = "127.0.0.1:8321"
var dir string = "."
var name string = "geovisord"
var enable bool = true
var passFile string = ""
var envFile string = ".env"

// authHandler enforces HTTP basic auth against a htpasswd style file of
// user:bcrypt-hash lines.
type authHandler struct {
	h     http.Handler
	users map[string]string
}

func (a *authHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	hash := a.users[user]
	if !ok || hash == "" ||
		bcrypt.CompareHashAndPassword(
			[]byte(hash), []byte(pass)) != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="geovisor"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	a.h.ServeHTTP(w, r)
}

func loadUsers(fname string) (map[string]string, error) {
	b, e := os.ReadFile(fname)
	if e != nil {
		return nil, e
	}
	users := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		users[parts[0]] = parts[1]
	}
	return users, nil
}

func main() {
	flag.StringVar(&addr, "a", addr, "listen address")
	flag.StringVar(&dir, "d", dir, "services and logs directory")
	flag.StringVar(&name, "n", name, "manager name")
	flag.BoolVar(&enable, "e", enable, "enable all services")
	flag.StringVar(&passFile, "p", passFile, "password file (user:bcrypt)")
	flag.StringVar(&envFile, "env", envFile, "environment file")
	flag.Parse()

	// Environment first, so manifests and children inherit it.
	if e := geovisor.LoadEnv(envFile); e != nil {
		log.Fatalf("Failed to load %s: %v", envFile, e)
	}
	if v := os.Getenv("GEOVISOR_ADDR"); v != "" && addr == "127.0.0.1:8321" {
		addr = v
	}

	pf := geovisor.Pidfile(path.Join(dir, "logs", name+".pid"))
	if pf.Alive() {
		pid, _ := pf.Read()
		log.Fatalf("%s already running (pid %d)", name, pid)
	}
	if e := pf.Write(os.Getpid()); e != nil {
		log.Fatalf("Failed to write pid file: %v", e)
	}

	m := geovisor.NewManager(name)
	m.StartMonitoring()

	svcDir := path.Join(dir, "services")

	if d, e := os.Open(svcDir); e != nil {
		log.Fatalf("Failed to open services directory %s: %v",
			svcDir, e)
	} else if files, e := d.Readdirnames(-1); e != nil {
		log.Fatalf("Failed to scan services: %v", e)
	} else {
		for _, f := range files {
			if !strings.HasSuffix(f, ".json") {
				continue
			}
			fname := path.Join(svcDir, f)
			if mf, e := os.Open(fname); e != nil {
				log.Printf("Failed to open manifest %s: %v",
					fname, e)
				continue
			} else if p, e := geovisor.NewProcessFromJson(mf); e != nil {
				log.Printf("Failed to load manifest %s: %v",
					fname, e)
				mf.Close()
				continue
			} else {
				m.AddService(p)
				mf.Close()
			}
		}
	}
	if enable {
		for _, s := range m.Services() {
			s.Enable()
		}
	}

	var h http.Handler = rest.NewHandler(m)
	if passFile != "" {
		users, e := loadUsers(passFile)
		if e != nil {
			log.Fatalf("Failed to load password file: %v", e)
		}
		h = &authHandler{h: h, users: users}
	}

	sigs := make(chan os.Signal, 1)
	done := make(chan bool, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		log.Fatal(http.ListenAndServe(addr, h))
	}()

	// Set up a handler, so that we shutdown cleanly if possible.
	go func() {
		<-sigs
		done <- true
	}()

	// Wait for a termination signal, and shutdown cleanly if we get it.
	<-done
	m.Shutdown()
	pf.Remove()
	os.Exit(1)
}
