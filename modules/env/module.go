// Package env registers the "env" callable, which reports the environment
// of the execute node.
package env

import (
	"os"
	"strings"

	"github.com/specialistvlad/condordag/callable"
)

// Module implements the callable.Module interface for this package.
type Module struct {
	// Environ replaces os.Environ.
	Environ func() []string
}

// Env returns the named environment variables, or all of them when no
// name is given. Unset variables are left out.
func (m *Module) Env(names ...string) map[string]string {
	environ := m.Environ
	if environ == nil {
		environ = os.Environ
	}

	all := make(map[string]string)
	for _, e := range environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			all[k] = v
		}
	}
	if len(names) == 0 {
		return all
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Register registers the callable with the registry.
func (m *Module) Register(r *callable.Registry) {
	r.RegisterFunc("env", m.Env)
}
