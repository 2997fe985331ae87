package dag

import (
	"context"
	"fmt"

	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/zclconf/go-cty/cty"
)

// InputBlob stores the call records of one or more jobs, keyed by job id.
// It is written at most once, and not at all while empty.
type InputBlob struct {
	filename string
	records  map[string]cty.Value
	written  bool
}

// NewInputBlob returns an empty blob.
func NewInputBlob(filename string) *InputBlob {
	return &InputBlob{filename: filename, records: make(map[string]cty.Value)}
}

// Filename returns the file the blob is written to.
func (b *InputBlob) Filename() string { return b.filename }

// Put stores the encoded call record of a job.
func (b *InputBlob) Put(jobID string, record cty.Value) {
	b.records[jobID] = record
}

// Record returns the stored record of a job.
func (b *InputBlob) Record(jobID string) (cty.Value, bool) {
	v, ok := b.records[jobID]
	return v, ok
}

// Len returns the number of stored records.
func (b *InputBlob) Len() int { return len(b.records) }

// Value returns all records as one object keyed by job id.
func (b *InputBlob) Value() cty.Value {
	if len(b.records) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(b.records)
}

// Written reports whether Write has taken effect.
func (b *InputBlob) Written() bool { return b.written }

// Write persists the blob through store.
func (b *InputBlob) Write(ctx context.Context, sk sink.Sink, store *valuestore.Store) error {
	if b.written || len(b.records) == 0 {
		return nil
	}
	data, err := store.Marshal(b.Value())
	if err != nil {
		return fmt.Errorf("failed to encode input file %s: %w", b.filename, err)
	}
	if err := sk.WriteFile(ctx, b.filename, data); err != nil {
		return fmt.Errorf("failed to write input file %s: %w", b.filename, err)
	}
	b.written = true
	ctxlog.FromContext(ctx).Debug("Input file written.", "file", b.filename, "records", len(b.records), "compressed", store.Compressed())
	return nil
}
