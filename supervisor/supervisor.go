// Copyright 2015 Apcera Inc. All rights reserved.

// Package supervisor keeps a single foreground program running. Every time the
// program ends it is started again after a fixed cooldown, for as long as the
// supervisor runs.
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/apcera/logray"
	"github.com/johndoe6345789/SparkOS/launcher"
)

// DefaultCooldown is the pause between the end of one program run and the
// start of the next. It keeps a program that fails instantly from turning
// into a tight respawn loop.
const DefaultCooldown = 2 * time.Second

// Child is a started program that can be waited for.
type Child interface {
	Pid() int
	Wait() launcher.Outcome
}

// Spawner starts the supervised program.
type Spawner interface {
	Spawn(spec *launcher.Spec) (Child, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(spec *launcher.Spec) (Child, error)

// Spawn calls f(spec).
func (f SpawnerFunc) Spawn(spec *launcher.Spec) (Child, error) {
	return f(spec)
}

// FromLauncher returns a Spawner backed by l.
func FromLauncher(l *launcher.Launcher) Spawner {
	return SpawnerFunc(func(spec *launcher.Spec) (Child, error) {
		c, err := l.Launch(spec)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Options tune a Supervisor.
type Options struct {
	// Cooldown between runs. Zero or negative selects DefaultCooldown.
	Cooldown time.Duration

	// OnOutcome is called after each outcome has been logged, before the
	// cooldown starts.
	OnOutcome func(launcher.Outcome)

	Log *logray.Logger
}

type state int

const (
	stateLaunching state = iota
	stateWaiting
)

// Supervisor runs the launch/wait cycle.
type Supervisor struct {
	spawner   Spawner
	spec      *launcher.Spec
	cooldown  time.Duration
	onOutcome func(launcher.Outcome)
	log       *logray.Logger

	launches uint64
}

// New returns a Supervisor for spec. opts may be nil.
func New(spawner Spawner, spec *launcher.Spec, opts *Options) *Supervisor {
	if opts == nil {
		opts = &Options{}
	}
	s := &Supervisor{
		spawner:   spawner,
		spec:      spec,
		cooldown:  opts.Cooldown,
		onOutcome: opts.OnOutcome,
		log:       opts.Log,
	}
	if s.cooldown <= 0 {
		s.cooldown = DefaultCooldown
	}
	if s.log == nil {
		s.log = logray.New()
	}
	return s
}

// Launches returns how many programs have been started successfully.
func (s *Supervisor) Launches() uint64 {
	return atomic.LoadUint64(&s.launches)
}

// Run alternates between launching the program and waiting for it. It only
// returns once ctx is done, and never while a started program is still
// running: a running program is always waited for.
func (s *Supervisor) Run(ctx context.Context) error {
	st := stateLaunching
	var child Child

	for {
		switch st {
		case stateLaunching:
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := s.spawner.Spawn(s.spec)
			if err != nil {
				s.log.Errorf("Failed to start %s: %v", s.spec.Path, err)
				child = nil
			} else {
				atomic.AddUint64(&s.launches, 1)
				s.log.Debugf("Started %s (pid %d)", s.spec, c.Pid())
				child = c
			}
			st = stateWaiting

		case stateWaiting:
			if child != nil {
				outcome := child.Wait()
				child = nil
				s.logOutcome(outcome)
				if s.onOutcome != nil {
					s.onOutcome(outcome)
				}
			}
			if err := s.sleep(ctx); err != nil {
				return err
			}
			st = stateLaunching
		}
	}
}

func (s *Supervisor) logOutcome(o launcher.Outcome) {
	switch {
	case o.Err != nil:
		s.log.Warnf("%s: %s", s.spec.Path, o)
	case o.Signaled, o.Code != 0 && !o.Reaped:
		s.log.Warnf("%s: %s after %v", s.spec.Path, o, o.Runtime)
	default:
		s.log.Infof("%s: %s after %v", s.spec.Path, o, o.Runtime)
	}
}

func (s *Supervisor) sleep(ctx context.Context) error {
	t := time.NewTimer(s.cooldown)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
