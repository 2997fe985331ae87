// Package sink provides the durable byte storage that graph, submit and
// input files are written to, and that job outputs are read back from.
package sink

import (
	"context"
	"errors"
)

// ErrNotFound is returned by ReadFile when the named file does not exist.
var ErrNotFound = errors.New("file not found")

// Sink stores whole files by name. Names are slash or OS separated paths,
// interpreted relative to the sink's root unless absolute.
type Sink interface {
	// WriteFile replaces the named file with data.
	WriteFile(ctx context.Context, name string, data []byte) error
	// ReadFile returns the content of the named file, or an error wrapping
	// ErrNotFound.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// Exists reports whether the named file is present.
	Exists(ctx context.Context, name string) (bool, error)
}
