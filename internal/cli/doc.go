// Package cli maps the condordag command line onto the app use cases. It
// builds the cobra command tree, layers flags over the configuration file
// and turns failures into process exit codes through ExitError.
package cli
