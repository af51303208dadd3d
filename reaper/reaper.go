// Copyright 2015 Apcera Inc. All rights reserved.

// Package reaper collects the exit status of every terminated child of the
// process. Running as PID 1, the process inherits every orphan on the system,
// and each of them stays a zombie until someone waits for it.
package reaper

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reaper is a SIGCHLD subscription. Besides the count of children it has
// collected it only remembers the one child that someone else is waiting for.
type Reaper struct {
	ch       chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
	reaped   uint64

	// mu is held for a whole sweep and while a held child is being started.
	mu   sync.Mutex
	held int
}

// Start registers for SIGCHLD and begins reaping. It should be called before
// the first child is created.
func Start() *Reaper {
	r := &Reaper{
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(r.ch, unix.SIGCHLD)
	go r.loop()
	return r
}

// Reaped returns the number of children collected so far.
func (r *Reaper) Reaped() uint64 {
	return atomic.LoadUint64(&r.reaped)
}

// Hold calls start, which must create a child and return its pid, and keeps
// that child away from the reaper until Release is called, so the caller's
// own wait sees its exit status. No sweep runs while start does.
func (r *Reaper) Hold(start func() (int, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, err := start()
	if err != nil {
		return err
	}
	r.held = pid
	return nil
}

// Release returns the child to the reaper once its status was collected, and
// sweeps up anything that was left behind it in the meantime.
func (r *Reaper) Release(pid int) {
	r.mu.Lock()
	if r.held == pid {
		r.held = 0
	}
	r.mu.Unlock()

	select {
	case r.ch <- unix.SIGCHLD:
	default:
	}
}

// Stop removes the subscription.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		signal.Stop(r.ch)
		close(r.done)
	})
}

func (r *Reaper) loop() {
	// anything that exited before the subscription existed
	r.reap()
	for {
		select {
		case <-r.ch:
			r.reap()
		case <-r.done:
			return
		}
	}
}

// reap collects every child that has already terminated, without blocking.
// Signals coalesce, so a single notification may stand for several children.
func (r *Reaper) reap() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		pid, err := r.next()
		if err == unix.EINTR {
			continue
		}
		// ECHILD simply means there are no children left.
		if err != nil || pid <= 0 {
			return
		}
		atomic.AddUint64(&r.reaped, 1)
	}
}

// next collects one terminated child and returns its pid, or 0 if there is
// none to collect. With a child held, the candidate is looked at first
// without collecting it; once the held child is the one waiting, the sweep
// ends until Release.
func (r *Reaper) next() (int, error) {
	var status unix.WaitStatus
	if r.held == 0 {
		return unix.Wait4(-1, &status, unix.WNOHANG, nil)
	}

	var info unix.Siginfo
	if err := unix.Waitid(unix.P_ALL, 0, &info, unix.WEXITED|unix.WNOHANG|unix.WNOWAIT, nil); err != nil {
		return 0, err
	}
	pid := siginfoPid(&info)
	if pid <= 0 || pid == r.held {
		return 0, nil
	}
	return unix.Wait4(pid, &status, unix.WNOHANG, nil)
}

// siginfoPid reads si_pid, the first field of the union that follows the
// three leading int32 fields of siginfo_t, aligned to a pointer.
func siginfoPid(info *unix.Siginfo) int {
	align := unsafe.Sizeof(uintptr(0))
	off := (3*unsafe.Sizeof(int32(0)) + align - 1) &^ (align - 1)
	return int(*(*int32)(unsafe.Pointer(uintptr(unsafe.Pointer(info)) + off)))
}
