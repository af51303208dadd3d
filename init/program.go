// Copyright 2015 Apcera Inc. All rights reserved.

package init

import (
	"time"

	"github.com/apcera/logray"
	"github.com/johndoe6345789/SparkOS/launcher"
	"github.com/johndoe6345789/SparkOS/supervisor"
)

// selectedProfile returns the configured profile, or the default one if the
// name is unknown.
func (c *sparkConfig) selectedProfile() *sparkProfile {
	if p, ok := profiles[c.Profile]; ok {
		return p
	}
	return profiles[defaultProfile]
}

// programConfig returns the profile's program with the configured overrides
// applied.
func (c *sparkConfig) programConfig() *sparkProgramConfig {
	base := c.selectedProfile().Program
	prog := &sparkProgramConfig{
		Path: base.Path,
		Args: append([]string(nil), base.Args...),
		Env:  append([]string(nil), base.Env...),
		UID:  base.UID,
		GID:  base.GID,
		Dir:  base.Dir,
	}
	if c.Program != nil {
		prog.merge(c.Program)
	}
	return prog
}

// overlayConfig returns the profile's overlay with the configured overrides
// applied.
func (c *sparkConfig) overlayConfig() *sparkOverlayConfig {
	ov := c.selectedProfile().Overlay
	if c.Overlay != nil {
		ov.merge(c.Overlay)
	}
	return &ov
}

// programSpec builds the launch spec for the supervised program.
func (c *sparkConfig) programSpec() (*launcher.Spec, error) {
	prog := c.programConfig()

	env, err := launcher.NewEnv(prog.Env...)
	if err != nil {
		return nil, err
	}

	spec := &launcher.Spec{
		Path: prog.Path,
		Args: prog.Args,
		Env:  env.Expand().Strings(),
		Dir:  prog.Dir,
	}
	if prog.UID != nil || prog.GID != nil {
		id := &launcher.Identity{}
		if prog.UID != nil {
			id.UID = *prog.UID
		}
		if prog.GID != nil {
			id.GID = *prog.GID
		}
		spec.Identity = id
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// defaultProgramSpec is the spec of the default profile without any
// configuration applied.
func defaultProgramSpec() *launcher.Spec {
	spec, err := defaultConfiguration().programSpec()
	if err != nil {
		panic(err)
	}
	return spec
}

// respawnDelay returns the configured cooldown between two runs of the
// program.
func (c *sparkConfig) respawnDelay(log *logray.Logger) time.Duration {
	if c.RespawnDelay == "" {
		return supervisor.DefaultCooldown
	}
	d, err := time.ParseDuration(c.RespawnDelay)
	if err != nil || d <= 0 {
		log.Warnf("Invalid respawn delay %q, using %v", c.RespawnDelay, supervisor.DefaultCooldown)
		return supervisor.DefaultCooldown
	}
	return d
}

// console reports whether the program should get the console as its
// controlling terminal.
func (c *sparkConfig) console() bool {
	return c.Console != nil && *c.Console
}
