// Copyright 2015 Apcera Inc. All rights reserved.

package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/apcera/logray"
)

const (
	// interceptEnv marks a process as a launch trampoline. It is checked by
	// Intercepted() before the init process does anything else.
	interceptEnv = "SPARKINIT_INTERCEPT"

	// specEnv carries the JSON encoded Spec into the trampoline.
	specEnv = "SPARKINIT_SPEC"

	// trampolineName is argv[0] of the trampoline, visible in ps until the
	// target program replaces it.
	trampolineName = "sparkinit-launch"
)

// Exit statuses of a trampoline that could not become the target program.
const (
	ExitIdentityFailed = 125
	ExitBadSpec        = 126
	ExitExecFailed     = 127
)

// selfExecutable is the binary re-executed as the trampoline.
var selfExecutable = "/proc/self/exe"

// Launcher starts supervised programs. The Go runtime cannot run code between
// fork and exec, so the child side steps (identity drop, chdir, execve) are
// performed by a re-executed copy of the current binary which then replaces
// itself with the target program. The pid returned is therefore the pid of
// the target program.
type Launcher struct {
	// Console files handed to the program. Nil means /dev/null.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Setctty starts the program in a new session with Stdin as its
	// controlling terminal.
	Setctty bool

	// Guard, when set, keeps launched children away from a process wide
	// reaper until Wait has collected their status.
	Guard Guard

	Log *logray.Logger
}

// Guard is implemented by a reaper that can leave one child alone.
type Guard interface {
	// Hold calls start and holds the pid it returns.
	Hold(start func() (int, error)) error
	// Release gives the pid back.
	Release(pid int)
}

// New returns a Launcher attached to the current console.
func New() *Launcher {
	return &Launcher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Log:    logray.New(),
	}
}

// Launch starts the program described by spec. An error means no process was
// created and nothing needs to be waited for.
func (l *Launcher) Launch(spec *Spec) (*Child, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launch spec: %v", err)
	}
	b, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode launch spec: %v", err)
	}

	cmd := &exec.Cmd{
		Path: selfExecutable,
		Args: []string{trampolineName},
		Env: []string{
			interceptEnv + "=1",
			specEnv + "=" + string(b),
		},
	}
	// a nil *os.File would close the descriptor instead of using /dev/null
	if l.Stdin != nil {
		cmd.Stdin = l.Stdin
	}
	if l.Stdout != nil {
		cmd.Stdout = l.Stdout
	}
	if l.Stderr != nil {
		cmd.Stderr = l.Stderr
	}
	if l.Setctty && l.Stdin != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setsid:  true,
			Setctty: true,
			Ctty:    0,
		}
	}

	start := func() (int, error) {
		if err := cmd.Start(); err != nil {
			return 0, err
		}
		return cmd.Process.Pid, nil
	}
	if l.Guard != nil {
		err = l.Guard.Hold(start)
	} else {
		_, err = start()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %v", spec.Path, err)
	}
	if l.Log != nil {
		l.Log.Debugf("Launched %s as pid %d", spec, cmd.Process.Pid)
	}
	return &Child{cmd: cmd, guard: l.Guard, started: time.Now()}, nil
}
