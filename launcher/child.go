// Copyright 2015 Apcera Inc. All rights reserved.

package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Child is a launched program that has not been waited for yet.
type Child struct {
	cmd     *exec.Cmd
	guard   Guard
	started time.Time
}

// Pid returns the process id of the program.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Wait blocks until the program terminates and returns how it ended. A child
// whose status was already collected by someone else, such as the SIGCHLD
// reaper, is reported as Reaped rather than as an error.
func (c *Child) Wait() Outcome {
	err := c.cmd.Wait()
	if c.guard != nil {
		c.guard.Release(c.Pid())
	}
	o := Outcome{
		Pid:     c.Pid(),
		Code:    -1,
		Runtime: time.Since(c.started),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		o.Code = 0
	case errors.As(err, &exitErr):
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			o.Signaled = true
			o.Signal = ws.Signal()
		} else {
			o.Code = exitErr.ExitCode()
		}
	case errors.Is(err, unix.ECHILD):
		o.Reaped = true
	default:
		o.Err = err
	}
	return o
}

// Outcome describes how a launched program ended.
type Outcome struct {
	Pid int

	// Code is the exit status, or -1 when the program was killed by a signal or
	// its status is unknown.
	Code int

	Signaled bool
	Signal   syscall.Signal

	// Reaped is set when the status was collected elsewhere before Wait could
	// see it. The program has exited but its status is lost.
	Reaped bool

	// Err is set when waiting failed for any other reason.
	Err error

	Runtime time.Duration
}

func (o Outcome) String() string {
	switch {
	case o.Signaled:
		return fmt.Sprintf("pid %d was killed by signal %d (%v)", o.Pid, int(o.Signal), o.Signal)
	case o.Reaped:
		return fmt.Sprintf("pid %d exited, status collected by the reaper", o.Pid)
	case o.Err != nil:
		return fmt.Sprintf("pid %d could not be waited for: %v", o.Pid, o.Err)
	}
	return fmt.Sprintf("pid %d exited with status %d", o.Pid, o.Code)
}
