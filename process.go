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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	PropProcessFailOnExit PropertyName = "_ProcFailOnExit"
	PropProcessStopCmd                 = "_ProcStopCmd"
	PropProcessStopTime                = "_ProcStopTime"
	PropProcessCheckCmd                = "_ProcCheckCmd"
	PropProcessCheckTime               = "_ProcCheckTime"
	PropProcessDirectory               = "_ProcDirectory"
	PropProcessUpdateCmd               = "_ProcUpdateCmd"
	PropProcessBuildCmd                = "_ProcBuildCmd"
	PropProcessUpdateTime              = "_ProcUpdateTime"
)

// Process represents an actual operating system level process.  This
// implements the Provider interface, and hence Process objects can be used
// as such.  A Process records its child's pid in a pid file and appends
// the child's output to a log file, when those are configured, mirroring
// the conventions a hand-rolled start script would use (logs/<name>.pid,
// logs/<name>.log).
type Process struct {
	name      string      // Service name, must be set
	desc      string      // Description
	provides  []string    // Usually empty, but a service can offer more
	depends   []string    // Services we depend upon
	conflicts []string    // Services that conflict with us
	logger    *log.Logger // Log for messages, stdout, and stderr.
	reason    error       // Why we failed
	failed    bool        // True if we are in failure state
	stopped   bool        // True if we were stopped

	dir     string   // Working directory for the child and its commands
	env     []string // Extra environment, KEY=VALUE form
	setsid  bool     // Detach the child into its own session
	pidfile Pidfile  // Where to record the child's pid
	logfile string   // Where to append the child's output
	logw    *os.File // Open log file, nil if none

	stopTime   time.Duration // Time to wait for clean shutdown, 0 = forever
	failOnExit bool          // If true, mark failed if the process exits.
	checkTime  time.Duration // Minimum interval between check commands
	lastCheck  time.Time
	updateTime time.Duration // Budget for each update pipeline stage
	stopCmd    *exec.Cmd
	checkCmd   *exec.Cmd
	updateCmd  *exec.Cmd
	buildCmd   *exec.Cmd
	startCmd   exec.Cmd  // Template, copied fresh on each start
	cmd        *exec.Cmd // Live instance, nil when not running

	lock   sync.Mutex
	waiter sync.WaitGroup
}

func (p *Process) doLog(r io.ReadCloser, w *os.File, prefix string) {
	// Gather stdout/stderr in chunks of lines
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			line = strings.Trim(line, "\n")
			p.logger.Print(prefix, line)
			if w != nil {
				w.WriteString(line + "\n")
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) Description() string {
	return p.desc
}

func copyArray(src []string) []string {
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}

func (p *Process) Provides() []string {
	return copyArray(p.provides)
}

func (p *Process) Conflicts() []string {
	return copyArray(p.conflicts)
}

func (p *Process) Depends() []string {
	return copyArray(p.depends)
}

// newStartCmd builds a fresh exec.Cmd from the start template.  A new one
// is needed on every start, since an exec.Cmd cannot be reused after Wait.
func (p *Process) newStartCmd() *exec.Cmd {
	c := &exec.Cmd{
		Path: p.startCmd.Path,
		Args: copyArray(p.startCmd.Args),
		Dir:  p.startCmd.Dir,
	}
	if c.Dir == "" {
		c.Dir = p.dir
	}
	if len(p.env) != 0 {
		c.Env = append(os.Environ(), p.env...)
	}
	if p.setsid {
		setSysProcAttr(c)
	}
	return c
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if e := os.MkdirAll(dir, 0755); e != nil {
			return nil, e
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func (p *Process) doWait(cmd *exec.Cmd) {

	e := cmd.Wait()
	p.lock.Lock()
	if !p.stopped {
		if e != nil {
			p.failed = true
			p.reason = e
			p.logger.Printf("Failed: %v", e)
		} else if p.failOnExit {
			e = errors.New("Unexpected termination")
			p.reason = e
			p.failed = true
			p.logger.Printf("Failed: %v", e)
		}
	}
	if p.pidfile != "" {
		p.pidfile.Remove()
	}
	p.lock.Unlock()
	p.waiter.Done()
}

func (p *Process) Start() error {

	p.lock.Lock()
	defer p.lock.Unlock()

	p.stopped = false
	p.failed = false
	p.reason = nil

	if p.logfile != "" {
		if w, e := openLogFile(p.logfile); e != nil {
			p.logger.Printf("Failed to open log file %s: %v",
				p.logfile, e)
		} else {
			if p.logw != nil {
				p.logw.Close()
			}
			p.logw = w
		}
	}

	cmd := p.newStartCmd()
	if stdout, e := cmd.StdoutPipe(); e != nil {
		p.logger.Printf("Failed to capture stdout: %v", e)
	} else {
		go p.doLog(stdout, p.logw, "stdout> ")
	}
	if stderr, e := cmd.StderrPipe(); e != nil {
		p.logger.Printf("Failed to capture stderr: %v", e)
	} else {
		go p.doLog(stderr, p.logw, "stderr> ")
	}

	if e := cmd.Start(); e != nil {
		p.failed = true
		p.reason = e
		return e
	}
	p.cmd = cmd
	if p.pidfile != "" {
		if e := p.pidfile.Write(cmd.Process.Pid); e != nil {
			p.logger.Printf("Failed to write pid file %s: %v",
				string(p.pidfile), e)
		}
	}
	p.waiter.Add(1)

	go p.doWait(cmd)

	return nil
}

func (p *Process) runCmdWithTimeout(pfx string, c *exec.Cmd, d time.Duration) error {
	newc := &exec.Cmd{}
	*newc = *c
	if newc.Dir == "" {
		newc.Dir = p.dir
	}
	if newc.Env == nil {
		newc.Env = os.Environ()
	}
	newc.Env = append(make([]string, 0, len(newc.Env)+len(p.env)+1),
		newc.Env...)
	newc.Env = append(newc.Env, p.env...)
	if cmd := p.cmd; cmd != nil && cmd.Process != nil {
		// Put the child's pid into the environment as $PID
		newc.Env = append(newc.Env,
			fmt.Sprintf("PID=%d", cmd.Process.Pid))
	}

	newc.Process = nil
	newc.ProcessState = nil

	if d == 0 {
		d = time.Second * 10
	}
	if stderr, e := newc.StderrPipe(); e != nil {
		p.logger.Printf("Failed to capture stderr: %v", e)
	} else {
		go p.doLog(stderr, nil, pfx+"stderr> ")
	}
	if stdout, e := newc.StdoutPipe(); e != nil {
		p.logger.Printf("Failed to capture stdout: %v", e)
	} else {
		go p.doLog(stdout, nil, pfx+"stdout> ")
	}

	if e := newc.Start(); e != nil {
		return e
	}
	proc := newc.Process
	timer := time.AfterFunc(d, func() {
		p.logger.Printf("Timeout waiting for %s command", pfx)
		proc.Kill()
	})
	e := newc.Wait()
	timer.Stop()
	return e
}

func (p *Process) shutdown() {
	if cmd := p.cmd; cmd != nil && cmd.Process != nil &&
		cmd.Process.Pid != -1 && cmd.ProcessState == nil {
		if p.stopCmd == nil {
			e := cmd.Process.Signal(syscall.SIGTERM)
			if e != nil {
				p.logger.Printf("Failed sending SIGTERM: %v", e)
			}
		} else {
			e := p.runCmdWithTimeout("stop", p.stopCmd, p.stopTime)
			if e != nil {
				p.logger.Printf("Failed stop cmd: %v", e)
			}
		}
	}
}

func (p *Process) kill() {
	if cmd := p.cmd; cmd != nil && cmd.Process != nil {
		e := cmd.Process.Kill()
		if e != nil {
			p.logger.Printf("Failed killing: %v", e)
		}
	}
}

func (p *Process) Stop() {

	p.lock.Lock()
	p.stopped = true
	if p.cmd != nil && p.cmd.Process != nil {
		var timer *time.Timer
		p.shutdown()
		if p.stopTime > 0 {
			timer = time.AfterFunc(p.stopTime, func() {
				p.logger.Printf("Graceful shutdown timed out")
				p.lock.Lock()
				p.kill()
				p.lock.Unlock()
			})
		}
		p.lock.Unlock()
		p.waiter.Wait()
		p.lock.Lock()
		if timer != nil {
			timer.Stop()
		}
	}
	p.cmd = nil
	if p.logw != nil {
		p.logw.Close()
		p.logw = nil
	}
	p.lock.Unlock()
}

func (p *Process) Check() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.failed {
		return p.reason
	}
	if p.checkCmd != nil && time.Since(p.lastCheck) >= p.checkTime {
		p.lastCheck = time.Now()
		if e := p.runCmdWithTimeout("check", p.checkCmd,
			p.checkTime); e != nil {
			p.failed = true
			p.reason = fmt.Errorf("Health check failed: %v", e)
			return p.reason
		}
	}
	return nil
}

// CanUpdate reports whether an update or build command is configured.
func (p *Process) CanUpdate() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.updateCmd != nil || p.buildCmd != nil
}

// Update runs the update command (typically a source fetch) followed by
// the build command.  Both run in the working directory, with the child
// left undisturbed; the first failure aborts the pipeline.
func (p *Process) Update() error {
	p.lock.Lock()
	update := p.updateCmd
	build := p.buildCmd
	d := p.updateTime
	p.lock.Unlock()

	if update == nil && build == nil {
		return ErrNoUpdater
	}
	if d == 0 {
		// Release builds are slow; give each stage a generous default.
		d = time.Minute * 10
	}
	if update != nil {
		if e := p.runCmdWithTimeout("update", update, d); e != nil {
			p.logger.Printf("Failed update cmd: %v", e)
			return e
		}
	}
	if build != nil {
		if e := p.runCmdWithTimeout("build", build, d); e != nil {
			p.logger.Printf("Failed build cmd: %v", e)
			return e
		}
	}
	return nil
}

func (p *Process) SetProperty(n PropertyName, v interface{}) error {
	switch n {
	case PropLogger:
		if v, ok := v.(*log.Logger); ok {
			p.logger = v
			return nil
		}
		return ErrBadPropType
	case PropProcessFailOnExit:
		if v, ok := v.(bool); ok {
			p.failOnExit = v
			return nil
		}
		return ErrBadPropType
	case PropProcessStopTime:
		if v, ok := v.(time.Duration); ok {
			p.stopTime = v
			return nil
		}
		return ErrBadPropType
	case PropProcessStopCmd:
		if v, ok := v.(*exec.Cmd); ok {
			p.stopCmd = new(exec.Cmd)
			*p.stopCmd = *v
			return nil
		}
		return ErrBadPropType
	case PropProcessCheckCmd:
		if v, ok := v.(*exec.Cmd); ok {
			p.checkCmd = new(exec.Cmd)
			*p.checkCmd = *v
			return nil
		}
		return ErrBadPropType
	case PropProcessCheckTime:
		if v, ok := v.(time.Duration); ok {
			p.checkTime = v
			return nil
		}
		return ErrBadPropType
	case PropProcessDirectory:
		if v, ok := v.(string); ok {
			p.dir = v
			return nil
		}
		return ErrBadPropType
	case PropProcessUpdateCmd:
		if v, ok := v.(*exec.Cmd); ok {
			p.updateCmd = new(exec.Cmd)
			*p.updateCmd = *v
			return nil
		}
		return ErrBadPropType
	case PropProcessBuildCmd:
		if v, ok := v.(*exec.Cmd); ok {
			p.buildCmd = new(exec.Cmd)
			*p.buildCmd = *v
			return nil
		}
		return ErrBadPropType
	case PropProcessUpdateTime:
		if v, ok := v.(time.Duration); ok {
			p.updateTime = v
			return nil
		}
		return ErrBadPropType
	}
	return ErrBadPropName
}

func (p *Process) Property(n PropertyName) (interface{}, error) {
	switch n {
	case PropLogger:
		return p.logger, nil
	case PropProcessFailOnExit:
		return p.failOnExit, nil
	case PropProcessStopTime:
		return p.stopTime, nil
	case PropProcessStopCmd:
		return p.stopCmd, nil
	case PropProcessCheckCmd:
		return p.checkCmd, nil
	case PropProcessCheckTime:
		return p.checkTime, nil
	case PropProcessDirectory:
		return p.dir, nil
	case PropProcessUpdateCmd:
		return p.updateCmd, nil
	case PropProcessBuildCmd:
		return p.buildCmd, nil
	case PropProcessUpdateTime:
		return p.updateTime, nil
	}
	return nil, ErrBadPropName
}

// Duration wraps time.Duration for manifest use.  A JSON string is parsed
// with time.ParseDuration ("30s", "5m"); a bare number is seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if e := json.Unmarshal(b, &s); e != nil {
			return e
		}
		v, e := time.ParseDuration(s)
		if e != nil {
			return e
		}
		*d = Duration(v)
		return nil
	}
	var f float64
	if e := json.Unmarshal(b, &f); e != nil {
		return e
	}
	*d = Duration(time.Duration(f * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ProcessManifest is the JSON description of a managed process.  One of
// these lives in each file of the daemon's services directory.  PidFile
// and LogFile default to logs/<base>.pid and logs/<base>.log under the
// working directory, where <base> is the service name without a variant.
type ProcessManifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Command     []string `json:"command"`
	Directory   string   `json:"directory"`
	Env         []string `json:"env"`
	Setsid      bool     `json:"setsid"`
	PidFile     string   `json:"pidFile"`
	LogFile     string   `json:"logFile"`
	StopCmd     []string `json:"stopCommand"`
	StopTime    Duration `json:"stopTime"`
	FailOnExit  bool     `json:"failOnExit"`
	CheckCmd    []string `json:"check"`
	CheckTime   Duration `json:"checkTime"`
	UpdateCmd   []string `json:"updateCommand"`
	BuildCmd    []string `json:"buildCommand"`
	UpdateTime  Duration `json:"updateTime"`
	Restart     bool     `json:"restart"`
	Provides    []string `json:"provides"`
	Depends     []string `json:"depends"`
	Conflicts   []string `json:"conflicts"`
}

func NewProcessFromManifest(m ProcessManifest) *Service {
	p := &Process{}
	p.name = m.Name
	p.desc = m.Description
	if len(m.Command) != 0 {
		p.startCmd.Path = m.Command[0]
		p.startCmd.Args = m.Command
	}
	if len(m.StopCmd) != 0 {
		p.stopCmd = exec.Command(m.StopCmd[0], m.StopCmd[1:]...)
	}
	if len(m.CheckCmd) != 0 {
		p.checkCmd = exec.Command(m.CheckCmd[0], m.CheckCmd[1:]...)
	}
	if len(m.UpdateCmd) != 0 {
		p.updateCmd = exec.Command(m.UpdateCmd[0], m.UpdateCmd[1:]...)
	}
	if len(m.BuildCmd) != 0 {
		p.buildCmd = exec.Command(m.BuildCmd[0], m.BuildCmd[1:]...)
	}
	p.dir = m.Directory
	p.env = copyArray(m.Env)
	p.setsid = m.Setsid
	p.stopTime = time.Duration(m.StopTime)
	p.checkTime = time.Duration(m.CheckTime)
	p.updateTime = time.Duration(m.UpdateTime)
	if p.checkTime == 0 {
		p.checkTime = time.Second * 10
	}
	p.depends = m.Depends
	p.conflicts = m.Conflicts
	p.provides = m.Provides
	p.failOnExit = m.FailOnExit

	base := strings.SplitN(m.Name, ":", 2)[0]
	p.pidfile = Pidfile(m.PidFile)
	p.logfile = m.LogFile
	if p.dir != "" {
		if p.pidfile == "" {
			p.pidfile = Pidfile(filepath.Join(p.dir, "logs",
				base+".pid"))
		}
		if p.logfile == "" {
			p.logfile = filepath.Join(p.dir, "logs", base+".log")
		}
	}

	s := NewService(p)
	s.SetProperty(PropRestart, m.Restart)
	return s
}

func NewProcessFromJson(r io.Reader) (*Service, error) {
	dec := json.NewDecoder(r)
	var m ProcessManifest
	if e := dec.Decode(&m); e != nil {
		return nil, e
	}
	return NewProcessFromManifest(m), nil
}

func NewProcess(name string, cmd *exec.Cmd) *Service {
	p := &Process{}
	p.logger = log.New(os.Stderr, "", log.LstdFlags)
	p.stopTime = time.Second * 10
	p.checkTime = time.Second * 10
	p.startCmd = *cmd
	p.name = name
	p.desc = name + " process: " + cmd.Path
	return NewService(p)
}
