// Package env composes the environment handed to launched shortcuts.
package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds configured variables layered over an optional OS base.
type Env struct {
	UseOS bool // start from the current process environment
	Var   Var  // configured variables (K->V)
}

func New(useOS bool) *Env {
	return &Env{UseOS: useOS, Var: make(Var)}
}

// Set sets a configured variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetPairs applies "K=V" entries; malformed entries are ignored.
func (e *Env) SetPairs(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := split(kv); ok {
			e.Set(k, v)
		}
	}
}

// LoadFile applies a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func (e *Env) LoadFile(path string) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := split(line); ok {
			e.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	return nil
}

// Merge composes the final environment applying, in order: the OS
// environment when UseOS is set, the configured variables, then extra
// "K=V" overrides. ${VAR} references are expanded once against the
// composed map. The result is sorted by key.
func (e *Env) Merge(extra []string) []string {
	m := make(Var)
	if e.UseOS {
		for _, kv := range os.Environ() {
			if k, v, ok := split(kv); ok {
				m[k] = v
			}
		}
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for _, kv := range extra {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}
