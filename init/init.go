// Copyright 2015 Apcera Inc. All rights reserved.

package init

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/apcera/logray"
	"github.com/johndoe6345789/SparkOS/launcher"
	"github.com/johndoe6345789/SparkOS/reaper"
	"github.com/johndoe6345789/SparkOS/supervisor"
	"golang.org/x/term"
)

// LogFormat is the line format used on the console outputs.
const LogFormat = logFormat

// ErrNotPID1 is returned by Run when the process is not the first process of
// the system. It is the only condition under which Run returns.
var ErrNotPID1 = errors.New("init must be run as PID 1")

// runner is an object that is used to handle the startup of SparkOS. It will
// take over the process once init.Run() is invoked.
type runner struct {
	config *sparkConfig
	log    *logray.Logger
	reaper *reaper.Reaper

	configFile  string
	cmdlineFile string

	getpid      func() int
	setup       []func(*runner) error
	mount       func(source, location, fstype string, flags uintptr, data string) error
	startReaper func() *reaper.Reaper
	supervise   func(*runner, *launcher.Spec) error
}

func newRunner() *runner {
	return &runner{
		config:      defaultConfiguration(),
		log:         logray.New(),
		configFile:  configurationFile,
		cmdlineFile: cmdlineFile,
		getpid:      os.Getpid,
		setup:       setupFunctions,
		mount:       handleMount,
		startReaper: reaper.Start,
		supervise:   (*runner).superviseProgram,
	}
}

// Run takes over the process and boots SparkOS. It does not return unless the
// process is not PID 1.
func Run() error {
	return newRunner().Run()
}

// Run checks the process identity, starts reaping children, prepares the
// environment and hands over to the supervisor. Setup failures are logged and
// the boot continues with whatever could be set up.
func (r *runner) Run() error {
	if r.getpid() != 1 {
		return ErrNotPID1
	}

	r.log.Info("SparkOS Init System Starting...")
	r.reaper = r.startReaper()

	for _, f := range r.setup {
		if err := f(r); err != nil {
			r.log.Warnf("Warning: %v", err)
		}
	}

	spec, err := r.config.programSpec()
	if err != nil {
		r.log.Errorf("Invalid program configuration, using the %q profile: %v", defaultProfile, err)
		spec = defaultProgramSpec()
	}
	return r.supervise(r, spec)
}

// superviseProgram runs the supervised program for as long as the system is
// up.
func (r *runner) superviseProgram(spec *launcher.Spec) error {
	l := launcher.New()
	l.Log = r.log.Clone()
	if r.config.console() {
		l.Setctty = term.IsTerminal(int(os.Stdin.Fd()))
		if !l.Setctty {
			r.log.Warn("Console is not a terminal, starting without a controlling terminal")
		}
	}

	// the reaper must not collect the status the launcher waits for
	if r.reaper != nil {
		l.Guard = r.reaper
	}

	label := r.config.selectedProfile().Label
	s := supervisor.New(supervisor.FromLauncher(l), spec, &supervisor.Options{
		Cooldown:  r.config.respawnDelay(r.log),
		Log:       r.log.Clone(),
		OnOutcome: r.respawnNotice(label),
	})

	r.log.Infof("Starting %s...", strings.ToLower(label))
	return s.Run(context.Background())
}

// respawnNotice returns the message shown on the console each time the
// program goes away.
func (r *runner) respawnNotice(label string) func(launcher.Outcome) {
	return func(launcher.Outcome) {
		r.log.Infof("%s exited. Press Ctrl+Alt+Del to reboot or wait for new %s...",
			label, strings.ToLower(label))
	}
}
