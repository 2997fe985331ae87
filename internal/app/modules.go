package app

import (
	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/modules/arith"
	"github.com/specialistvlad/condordag/modules/env"
	"github.com/specialistvlad/condordag/modules/fetch"
	"github.com/specialistvlad/condordag/modules/print"
	"github.com/specialistvlad/condordag/modules/shell"
)

// coreModules is the definitive list of all modules that are compiled into
// the condordag binary. Graph files built by this binary can only call
// what these register.
func coreModules() []callable.Module {
	return []callable.Module{
		&arith.Module{},
		&env.Module{},
		&fetch.Module{},
		&print.Module{},
		&shell.Module{},
	}
}
