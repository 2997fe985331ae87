package capture

import (
	"reflect"

	"github.com/specialistvlad/condordag/classad"
	"github.com/zclconf/go-cty/cty"
)

// Source is a job whose future output can be passed as an argument to
// another job. Implementations must be comparable; captures tell jobs
// apart by identity, not by id.
type Source interface {
	// SourceID is the node id of the job.
	SourceID() string
	// OutputPattern returns the job's output file pattern. ok is false when
	// the job's output has been suppressed.
	OutputPattern() (pattern string, ok bool, err error)
	// ProcessCount is the size of the job's process cluster, or 0 when the
	// job was not declared as a cluster.
	ProcessCount() int
}

// SourceType is the capsule type carrying a Source inside a cty value tree.
var SourceType = cty.Capsule("job", reflect.TypeOf((*Source)(nil)).Elem())

// FactType is the capsule type carrying a classad.Attr.
var FactType = cty.Capsule("fact", reflect.TypeOf(classad.Attr{}))

// SourceVal wraps s so it can be embedded in an argument tree.
func SourceVal(s Source) cty.Value {
	return cty.CapsuleVal(SourceType, &s)
}

// FactVal wraps a runtime fact reference.
func FactVal(a classad.Attr) cty.Value {
	return cty.CapsuleVal(FactType, &a)
}

// AsSource unwraps a value created by SourceVal.
func AsSource(v cty.Value) (Source, bool) {
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(SourceType) {
		return nil, false
	}
	return *(v.EncapsulatedValue().(*Source)), true
}

// AsFact unwraps a value created by FactVal.
func AsFact(v cty.Value) (classad.Attr, bool) {
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(FactType) {
		return classad.Attr{}, false
	}
	return *(v.EncapsulatedValue().(*classad.Attr)), true
}
