// Copyright 2015 Apcera Inc. All rights reserved.

package launcher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// ops are the system calls the trampoline makes, in the order it makes them.
type ops interface {
	Setgroups(gids []int) error
	Setgid(gid int) error
	Setuid(uid int) error
	Chdir(dir string) error
	Exec(path string, argv, env []string) error
}

type systemOps struct{}

func (systemOps) Setgroups(gids []int) error { return unix.Setgroups(gids) }
func (systemOps) Setgid(gid int) error       { return unix.Setgid(gid) }
func (systemOps) Setuid(uid int) error       { return unix.Setuid(uid) }
func (systemOps) Chdir(dir string) error     { return unix.Chdir(dir) }

func (systemOps) Exec(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}

// Intercepted reports whether the current process was started by Launch as a
// trampoline. It must be checked at the very start of main.
func Intercepted() bool {
	return os.Getenv(interceptEnv) == "1"
}

// RunIntercept performs the child side of a launch. On success it does not
// return, the process image is replaced by the target program. Otherwise it
// returns the exit status the trampoline should terminate with.
//
// Diagnostics are written straight to stderr: the process exits or execs right
// after writing them, so there is no time for an asynchronous logger.
func RunIntercept() int {
	runtime.LockOSThread()

	var spec *Spec
	if err := json.Unmarshal([]byte(os.Getenv(specEnv)), &spec); err != nil || spec == nil {
		fmt.Fprintf(os.Stderr, "sparkinit: invalid launch spec: %v\n", err)
		return ExitBadSpec
	}
	if err := spec.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sparkinit: invalid launch spec: %v\n", err)
		return ExitBadSpec
	}
	return execSpec(systemOps{}, os.Stderr, spec)
}

// execSpec switches identity, changes directory and executes the program.
// The group must be changed while the process still has the privilege to do
// so, which is lost once the user id changes.
func execSpec(o ops, stderr io.Writer, spec *Spec) int {
	if id := spec.Identity; id != nil {
		if err := o.Setgroups([]int{id.GID}); err != nil {
			fmt.Fprintf(stderr, "sparkinit: setgroups failed: %v\n", err)
			return ExitIdentityFailed
		}
		if err := o.Setgid(id.GID); err != nil {
			fmt.Fprintf(stderr, "sparkinit: setgid %d failed: %v\n", id.GID, err)
			return ExitIdentityFailed
		}
		if err := o.Setuid(id.UID); err != nil {
			fmt.Fprintf(stderr, "sparkinit: setuid %d failed: %v\n", id.UID, err)
			return ExitIdentityFailed
		}
	}

	if spec.Dir != "" {
		if err := o.Chdir(spec.Dir); err != nil {
			fmt.Fprintf(stderr, "sparkinit: warning: chdir %s failed: %v\n", spec.Dir, err)
		}
	}

	err := o.Exec(spec.Path, spec.argv(), spec.Env)
	fmt.Fprintf(stderr, "sparkinit: failed to exec %s: %v\n", spec.Path, err)
	return ExitExecFailed
}
