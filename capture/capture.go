// Package capture turns a call's arguments into a durable record and
// discovers the jobs the call depends on.
//
// At build time, arguments are converted into a cty value tree in which
// jobs and runtime facts are capsules. Capture walks that tree with an
// explicit visitor, records every job it meets in a per-call Context and
// substitutes a plain placeholder object for it. The placeholder is
// serializable and names the job, its output file pattern and its process
// count.
//
// At run time, Resolve walks the decoded tree again and replaces each
// placeholder with the value the predecessor job wrote, as supplied by a
// Resolver.
package capture

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// ErrUnsupportedCapsule is returned for capsule values other than jobs and
// runtime facts.
var ErrUnsupportedCapsule = errors.New("unsupported capsule value")

// Record is a call: the callable's registered name and its arguments.
type Record struct {
	Func   string
	Args   []cty.Value
	Kwargs map[string]cty.Value
}

// NewRecord converts native Go arguments with ToValue.
func NewRecord(fn string, args []any, kwargs map[string]any) (Record, error) {
	rec := Record{Func: fn}
	for i, a := range args {
		v, err := ToValue(a)
		if err != nil {
			return Record{}, fmt.Errorf("argument %d of %s: %w", i, fn, err)
		}
		rec.Args = append(rec.Args, v)
	}
	if len(kwargs) > 0 {
		rec.Kwargs = make(map[string]cty.Value, len(kwargs))
	}
	for k, a := range kwargs {
		v, err := ToValue(a)
		if err != nil {
			return Record{}, fmt.Errorf("argument %q of %s: %w", k, fn, err)
		}
		rec.Kwargs[k] = v
	}
	return rec, nil
}

// Value encodes the record as an object with func, args and kwargs.
func (r Record) Value() cty.Value {
	args := cty.EmptyTupleVal
	if len(r.Args) > 0 {
		args = cty.TupleVal(r.Args)
	}
	kwargs := cty.EmptyObjectVal
	if len(r.Kwargs) > 0 {
		kwargs = cty.ObjectVal(r.Kwargs)
	}
	return cty.ObjectVal(map[string]cty.Value{
		"func":   cty.StringVal(r.Func),
		"args":   args,
		"kwargs": kwargs,
	})
}

// DecodeRecord is the inverse of Record.Value.
func DecodeRecord(v cty.Value) (Record, error) {
	if v.IsNull() || !v.Type().IsObjectType() {
		return Record{}, fmt.Errorf("call record must be an object, got %s", v.Type().FriendlyName())
	}
	fn, ok := stringAttr(v, "func")
	if !ok {
		return Record{}, errors.New("call record has no func")
	}
	rec := Record{Func: fn}

	if v.Type().HasAttribute("args") {
		args := v.GetAttr("args")
		if !args.IsNull() {
			if !args.CanIterateElements() {
				return Record{}, fmt.Errorf("call record args must be a sequence")
			}
			for it := args.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				rec.Args = append(rec.Args, ev)
			}
		}
	}
	if v.Type().HasAttribute("kwargs") {
		kwargs := v.GetAttr("kwargs")
		if !kwargs.IsNull() {
			if !kwargs.CanIterateElements() {
				return Record{}, fmt.Errorf("call record kwargs must be an object")
			}
			for it := kwargs.ElementIterator(); it.Next(); {
				k, ev := it.Element()
				if rec.Kwargs == nil {
					rec.Kwargs = make(map[string]cty.Value)
				}
				rec.Kwargs[k.AsString()] = ev
			}
		}
	}
	return rec, nil
}

// Context accumulates the jobs discovered while encoding one record. A
// Context belongs to a single capture; concurrent captures use separate
// contexts.
type Context struct {
	parents []Source
	seen    map[Source]struct{}
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{seen: make(map[Source]struct{})}
}

// Parents returns the discovered jobs in order of first appearance.
func (c *Context) Parents() []Source {
	out := make([]Source, len(c.parents))
	copy(out, c.parents)
	return out
}

func (c *Context) add(s Source) {
	if _, ok := c.seen[s]; ok {
		return
	}
	c.seen[s] = struct{}{}
	c.parents = append(c.parents, s)
}

// Encode replaces every capsule in v with its placeholder and records the
// jobs it references.
func (c *Context) Encode(v cty.Value) (cty.Value, error) {
	return Rewrite(v, func(path cty.Path, v cty.Value) (cty.Value, bool, error) {
		if v.IsNull() || !v.IsKnown() || !v.Type().IsCapsuleType() {
			return v, false, nil
		}
		if s, ok := AsSource(v); ok {
			p, err := placeholderFor(s)
			if err != nil {
				return cty.NilVal, false, err
			}
			c.add(s)
			return p.Value(), true, nil
		}
		if a, ok := AsFact(v); ok {
			return factValue(a), true, nil
		}
		return cty.NilVal, false, fmt.Errorf("%w %s at %s", ErrUnsupportedCapsule, v.Type().FriendlyName(), FormatPath(path))
	})
}

// Result is the outcome of capturing one call.
type Result struct {
	// Record is the encoded call record, free of capsules.
	Record cty.Value
	// Parents are the jobs referenced by the arguments.
	Parents []Source
}

// Capture encodes rec in a fresh Context.
func Capture(rec Record) (Result, error) {
	c := NewContext()
	enc, err := c.Encode(rec.Value())
	if err != nil {
		return Result{}, fmt.Errorf("failed to capture call to %s: %w", rec.Func, err)
	}
	return Result{Record: enc, Parents: c.Parents()}, nil
}

// StagedFiles returns the sorted, de-duplicated output files of all
// parents.
func (r Result) StagedFiles() ([]string, error) {
	set := make(map[string]struct{})
	for _, s := range r.Parents {
		p, err := placeholderFor(s)
		if err != nil {
			return nil, err
		}
		for _, f := range p.Files() {
			set[f] = struct{}{}
		}
	}
	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// FormatPath renders a cty.Path as `args[0].name`.
func FormatPath(path cty.Path) string {
	var b strings.Builder
	for _, step := range path {
		switch s := step.(type) {
		case cty.GetAttrStep:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Name)
		case cty.IndexStep:
			switch {
			case s.Key.Type() == cty.String:
				fmt.Fprintf(&b, "[%q]", s.Key.AsString())
			case s.Key.Type() == cty.Number:
				b.WriteString("[" + s.Key.AsBigFloat().Text('f', -1) + "]")
			}
		}
	}
	if b.Len() == 0 {
		return "<root>"
	}
	return b.String()
}
