// Copyright 2015 Apcera Inc. All rights reserved.

package reaper

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	. "github.com/apcera/util/testtool"
)

// -------
// Helpers
// -------

// Returns the state letter of a task from /proc/<pid>/stat, or "" if the task
// no longer exists.
func taskState(t *testing.T, pid int) string {
	stat, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if os.IsNotExist(err) {
		return ""
	}
	TestExpectSuccess(t, err)

	// the command name is in parens and may contain spaces
	s := string(stat)
	fields := strings.Fields(s[strings.LastIndex(s, ")")+1:])
	if len(fields) < 1 {
		Fatalf(t, "Unknown output in /proc/%d/stat: %s", pid, s)
	}
	return fields[0]
}

// Forks children that exit immediately, without anyone waiting for them.
func forkExiting(t *testing.T, n int) []int {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skipf("/bin/true is not available: %v", err)
	}
	pids := make([]int, n)
	for i := range pids {
		pid, err := syscall.ForkExec("/bin/true", []string{"true"}, &syscall.ProcAttr{})
		TestExpectSuccess(t, err)
		pids[i] = pid
	}
	return pids
}

func waitGone(t *testing.T, pids []int) {
	Timeout(t, 5*time.Second, 10*time.Millisecond, func() bool {
		for _, pid := range pids {
			if taskState(t, pid) != "" {
				return false
			}
		}
		return true
	})
}

// -----
// Tests
// -----

func TestReapsChildren(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)

	r := Start()
	defer r.Stop()

	pids := forkExiting(t, 25)
	waitGone(t, pids)
	Timeout(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return r.Reaped() >= uint64(len(pids))
	})
}

func TestReapsChildrenExitedBeforeStart(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)

	pids := forkExiting(t, 5)

	// let them all turn into zombies first
	Timeout(t, 5*time.Second, 10*time.Millisecond, func() bool {
		for _, pid := range pids {
			if taskState(t, pid) != "Z" {
				return false
			}
		}
		return true
	})

	r := Start()
	defer r.Stop()
	waitGone(t, pids)
}

func TestLeavesRunningChildrenAlone(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skipf("/bin/sleep is not available: %v", err)
	}

	r := Start()
	defer r.Stop()

	pid, err := syscall.ForkExec("/bin/sleep", []string{"sleep", "0.3"}, &syscall.ProcAttr{})
	TestExpectSuccess(t, err)

	// trigger a sweep while the sleeper is still running
	forkExiting(t, 1)
	time.Sleep(50 * time.Millisecond)
	state := taskState(t, pid)
	TestTrue(t, state != "" && state != "Z")

	waitGone(t, []int{pid})
}

func TestTargetedWaitRacesReaper(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skipf("/bin/true is not available: %v", err)
	}

	r := Start()
	defer r.Stop()

	// Whichever side collects the status, the waiter must come back either
	// with a clean exit or with ECHILD, never hang or see anything else.
	for i := 0; i < 20; i++ {
		cmd := exec.Command("/bin/true")
		TestExpectSuccess(t, cmd.Start())
		err := cmd.Wait()
		if err != nil && !errors.Is(err, unix.ECHILD) {
			Fatalf(t, "unexpected wait error: %v", err)
		}
	}
}

func TestHeldChildKeepsItsStatus(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skipf("/bin/sh is not available: %v", err)
	}

	r := Start()
	defer r.Stop()

	var pid int
	TestExpectSuccess(t, r.Hold(func() (int, error) {
		var err error
		pid, err = syscall.ForkExec("/bin/sh", []string{"sh", "-c", "sleep 0.2; exit 7"}, &syscall.ProcAttr{})
		return pid, err
	}))

	// other children are still collected while the held one runs
	waitGone(t, forkExiting(t, 5))

	// once it exits it stays a zombie, however many sweeps run
	Timeout(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return taskState(t, pid) == "Z"
	})
	reaped := r.Reaped()
	late := forkExiting(t, 3)
	time.Sleep(50 * time.Millisecond)
	TestEqual(t, taskState(t, pid), "Z")

	var status unix.WaitStatus
	wpid, err := unix.Wait4(pid, &status, 0, nil)
	TestExpectSuccess(t, err)
	TestEqual(t, wpid, pid)
	TestTrue(t, status.Exited())
	TestEqual(t, status.ExitStatus(), 7)

	// anything that queued up behind it is swept after the release
	r.Release(pid)
	waitGone(t, late)
	Timeout(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return r.Reaped() > reaped
	})
}

func TestHoldFailure(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)

	r := Start()
	defer r.Stop()

	err := r.Hold(func() (int, error) { return 0, errors.New("fork failed") })
	TestExpectError(t, err)
	r.mu.Lock()
	TestEqual(t, r.held, 0)
	r.mu.Unlock()

	// releasing an unknown pid leaves nothing held
	r.Release(12345)
	waitGone(t, forkExiting(t, 3))
}

func TestStopIsIdempotent(t *testing.T) {
	StartTest(t)
	defer FinishTest(t)

	r := Start()
	r.Stop()
	r.Stop()
	select {
	case <-r.done:
	default:
		Fatalf(t, "reaper was not stopped")
	}
}
