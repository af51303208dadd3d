// Copyright 2015 Apcera Inc. All rights reserved.

package launcher

import (
	"fmt"
	"strings"

	"github.com/apcera/util/envmap"
)

// Env is an ordered list of environment variables. Keys are unique, and
// setting an existing key replaces its value without changing its position.
type Env struct {
	keys   []string
	values map[string]string
}

// NewEnv returns an Env populated from a list of KEY=value pairs. A later
// pair for the same key replaces the earlier value.
func NewEnv(pairs ...string) (*Env, error) {
	e := &Env{values: make(map[string]string, len(pairs))}
	for _, pair := range pairs {
		key, value, err := splitPair(pair)
		if err != nil {
			return nil, err
		}
		e.Set(key, value)
	}
	return e, nil
}

// Set assigns value to key, appending the key if it is new.
func (e *Env) Set(key, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Get returns the raw value for key.
func (e *Env) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Len returns the number of variables.
func (e *Env) Len() int {
	return len(e.keys)
}

// Merge sets every variable of other onto e, in other's order.
func (e *Env) Merge(other *Env) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		e.Set(k, other.values[k])
	}
}

// Expand returns a copy of the list where $KEY and ${KEY} references to keys
// defined earlier in the list are replaced by their values. Any other use of
// $ is kept as written, so shell syntax such as $? or $$ in a prompt reaches
// the program unchanged.
func (e *Env) Expand() *Env {
	defined := envmap.NewEnvMap()
	expanded := &Env{values: make(map[string]string, len(e.keys))}
	for _, k := range e.keys {
		v := expandDefined(e.values[k], defined)
		defined.Set(k, v)
		expanded.Set(k, v)
	}
	return expanded
}

// expandDefined replaces the references in s that name a key of defined.
func expandDefined(s string, defined *envmap.EnvMap) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 == len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		name, width := referenceAt(s[i+1:])
		if name != "" {
			if v, ok := defined.GetRaw(name); ok {
				b.WriteString(v)
				i += 1 + width
				continue
			}
		}
		b.WriteByte('$')
		i++
	}
	return b.String()
}

// referenceAt parses the variable name following a $, either bare or in
// braces. It returns the name and the number of bytes it spans, or "" when s
// does not start with a reference.
func referenceAt(s string) (string, int) {
	if s[0] == '{' {
		end := strings.IndexByte(s, '}')
		if end < 0 || !isName(s[1:end]) {
			return "", 0
		}
		return s[1:end], end + 1
	}
	n := 0
	for n < len(s) && isNameByte(s[n], n == 0) {
		n++
	}
	return s[:n], n
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return !first
	}
	return false
}

// Strings returns the KEY=value pairs in insertion order.
func (e *Env) Strings() []string {
	r := make([]string, len(e.keys))
	for i, k := range e.keys {
		r[i] = k + "=" + e.values[k]
	}
	return r
}

func splitPair(pair string) (string, string, error) {
	kv := strings.SplitN(pair, "=", 2)
	if len(kv) != 2 || kv[0] == "" {
		return "", "", fmt.Errorf("invalid environment entry %q, expected KEY=value", pair)
	}
	return kv[0], kv[1], nil
}
