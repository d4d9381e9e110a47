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

// Command geovisor implements a client application that communicates to
// geovisord.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the listen address, default is
//			  http://localhost:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	services            - list all services
//	status [<svc> ...]  - show status for the named services (or all)
//	info <svc>          - show more detailed service info
//	enable  <svc>       - enable the named service
//	disable <svc>       - disable the named service
//	restart <svc>       - restart the named service
//	clear <svc>         - clear the named service
//	update <svc>        - update, rebuild, and restart the named service
//	log [<svc>]         - obtain the log for the named service
//
// With no subcommand, a full screen console is started.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/geovisor/geovisor/geovisor/ui"
	"github.com/geovisor/geovisor/geovisor/util"
	"github.com/geovisor/geovisor/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func showStatus(s *rest.ServiceInfo) {
	d := time.Since(s.TimeStamp)
	// for printing second resolution is sufficient
	d -= d % time.Second
	fmt.Printf("%10s %10s %10s %s\n", s.Name,
		util.Status(s), d.String(), s.Status)
}

func main() {
	flag.StringVar(&addr, "a", addr, "geovisor address")
	flag.StringVar(&auth, "u", auth, "user:pass authentication")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			log.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}

	switch args[0] {
	case "services":
		if len(args) != 1 {
			usage()
		}
		s, e := client.Services()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		sort.Strings(s)
		for _, name := range s {
			fmt.Println(name)
		}
	case "enable":
		if len(args) != 2 {
			usage()
		}
		e := client.EnableService(args[1])
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
	case "disable":
		if len(args) != 2 {
			usage()
		}
		e := client.DisableService(args[1])
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "restart":
		if len(args) != 2 {
			usage()
		}
		e := client.RestartService(args[1])
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "clear":
		if len(args) != 2 {
			usage()
		}
		e := client.ClearService(args[1])
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "update":
		if len(args) != 2 {
			usage()
		}
		// This blocks while the update pipeline runs.
		e := client.UpdateService(args[1])
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "log":
		name := ""
		switch len(args) {
		case 1:
		case 2:
			name = args[1]
		default:
			usage()
		}
		recs, e := client.GetServiceLog(name)
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, r := range recs {
			fmt.Printf("%s %s\n",
				r.Time.Format(time.StampMilli), r.Text)
		}
	case "info":
		if len(args) != 2 {
			usage()
		}
		s, e := client.GetService(args[1])
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Name:      %s\n", s.Name)
		fmt.Printf("Desc:      %s\n", s.Description)
		fmt.Printf("Status:    %s\n", util.Status(s))
		fmt.Printf("Since:     %v\n", time.Since(s.TimeStamp))
		fmt.Printf("Detail:    %s\n", s.Status)
		fmt.Printf("Updatable: %v\n", s.CanUpdate)
		fmt.Printf("Provides: ")
		for _, p := range s.Provides {
			fmt.Printf(" %s", p)
		}
		fmt.Printf("\n")
		fmt.Printf("Depends:   ")
		for _, p := range s.Depends {
			fmt.Printf(" %s", p)
		}
		fmt.Printf("\n")
		fmt.Printf("Conflicts: ")
		for _, p := range s.Conflicts {
			fmt.Printf(" %s", p)
		}
		fmt.Printf("\n")
	case "status":
		names := args[1:]
		var e error
		if len(names) == 0 {
			names, e = client.Services()
			if e != nil {
				log.Fatalf("Failed: %v", e)
			}
		}
		if len(names) == 0 {
			// No services?
			return
		}
		infos := []*rest.ServiceInfo{}
		for _, n := range names {
			info, e := client.GetService(n)
			if e == nil {
				infos = append(infos, info)
			} else {
				log.Printf("Failed: %v", e)
			}
		}
		util.SortServices(infos)
		for _, info := range infos {
			showStatus(info)
		}
	case "ui":
		ui.NewApp(client, addr).Run()
	default:
		usage()
	}
}
