// Copyright 2015 Apcera Inc. All rights reserved.

package launcher

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Identity is the user and group a launched program is switched to before its
// image is executed.
type Identity struct {
	UID int `json:"uid"`
	GID int `json:"gid"`
}

// Spec describes the program that is launched. It is built once from
// configuration and is not modified afterwards.
type Spec struct {
	// Path is the absolute path of the executable.
	Path string `json:"path"`

	// Args is the full argument vector, including argv[0]. When empty the
	// program is started with Path as its only argument.
	Args []string `json:"args,omitempty"`

	// Env is the complete environment of the program as KEY=value pairs.
	// Nothing from the launching process is added to it.
	Env []string `json:"env"`

	// Identity, when set, is applied group first, then user.
	Identity *Identity `json:"identity,omitempty"`

	// Dir is the working directory. Failing to enter it is not fatal.
	Dir string `json:"dir,omitempty"`
}

// Validate checks that the spec can be handed to the launch trampoline.
func (s *Spec) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("no executable path given")
	}
	if !filepath.IsAbs(s.Path) {
		return fmt.Errorf("executable path %q is not absolute", s.Path)
	}
	seen := make(map[string]bool, len(s.Env))
	for _, pair := range s.Env {
		key, _, err := splitPair(pair)
		if err != nil {
			return err
		}
		if seen[key] {
			return fmt.Errorf("environment variable %q is set more than once", key)
		}
		seen[key] = true
	}
	if id := s.Identity; id != nil && (id.UID < 0 || id.GID < 0) {
		return fmt.Errorf("invalid identity %d:%d", id.UID, id.GID)
	}
	return nil
}

// argv returns the argument vector passed to execve.
func (s *Spec) argv() []string {
	if len(s.Args) == 0 {
		return []string{s.Path}
	}
	return s.Args
}

func (s *Spec) String() string {
	str := strings.Join(s.argv(), " ")
	if s.Identity != nil {
		str = fmt.Sprintf("%s (uid=%d gid=%d)", str, s.Identity.UID, s.Identity.GID)
	}
	return str
}
