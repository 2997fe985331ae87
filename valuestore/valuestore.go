// Package valuestore persists cty values to bytes and back. Call records,
// input blobs and job results all go through it, so a value written by one
// job can be read by any downstream job.
//
// Values are encoded as cty JSON together with their type, which keeps the
// distinction between lists, tuples, maps and objects across a round trip.
// Encoded data may optionally be compressed with zstd; Unmarshal detects
// compressed input by its frame magic, so readers need no configuration.
package valuestore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ErrCorrupted is returned when stored data cannot be decoded.
var ErrCorrupted = errors.New("corrupted value data")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Store encodes and decodes values.
type Store struct {
	compress bool
}

// Option configures a Store.
type Option func(*Store)

// WithCompression makes Marshal compress its output with zstd.
func WithCompression(enabled bool) Option {
	return func(s *Store) {
		s.compress = enabled
	}
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compressed reports whether Marshal compresses its output.
func (s *Store) Compressed() bool {
	return s.compress
}

// Marshal encodes v. Capsule values (unresolved job or fact references)
// cannot be stored and produce an error.
func (s *Store) Marshal(v cty.Value) ([]byte, error) {
	if v == cty.NilVal {
		v = cty.NullVal(cty.DynamicPseudoType)
	}
	data, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	if s.compress {
		data = encoder.EncodeAll(data, make([]byte, 0, len(data)))
	}
	return data, nil
}

// Unmarshal decodes data produced by Marshal, compressed or not.
func (s *Store) Unmarshal(data []byte) (cty.Value, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		plain, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		data = plain
	}
	v, err := ctyjson.Unmarshal(data, cty.DynamicPseudoType)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return v, nil
}
