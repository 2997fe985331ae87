package capture

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"

	"github.com/specialistvlad/condordag/classad"
	"github.com/zclconf/go-cty/cty"
)

const (
	jobKey  = "__condordag_job__"
	factKey = "__condordag_fact__"
)

// Placeholder is the durable stand-in for a predecessor job's output.
type Placeholder struct {
	ID        string
	Output    string
	HasOutput bool
	// Processes is 0 for a plain job, N for a cluster of N processes.
	Processes int
}

// Files lists the output files the referenced job produces.
func (p Placeholder) Files() []string {
	if !p.HasOutput {
		return nil
	}
	return OutputFiles(p.ID, p.Output, p.Processes)
}

// Value encodes the placeholder.
func (p Placeholder) Value() cty.Value {
	output := cty.NullVal(cty.String)
	if p.HasOutput {
		output = cty.StringVal(p.Output)
	}
	return cty.ObjectVal(map[string]cty.Value{
		jobKey: cty.ObjectVal(map[string]cty.Value{
			"id":        cty.StringVal(p.ID),
			"output":    output,
			"processes": cty.NumberIntVal(int64(p.Processes)),
		}),
	})
}

func placeholderFor(s Source) (Placeholder, error) {
	pattern, ok, err := s.OutputPattern()
	if err != nil {
		return Placeholder{}, fmt.Errorf("job %s used as an argument: %w", s.SourceID(), err)
	}
	return Placeholder{
		ID:        s.SourceID(),
		Output:    pattern,
		HasOutput: ok,
		Processes: s.ProcessCount(),
	}, nil
}

func factValue(a classad.Attr) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		factKey: cty.ObjectVal(map[string]cty.Value{
			"attr":   cty.StringVal(a.Name),
			"source": cty.StringVal(a.Source.String()),
		}),
	})
}

// tagged returns the body of a single-attribute object keyed by key.
func tagged(v cty.Value, key string) (cty.Value, bool) {
	if v.IsNull() || !v.IsKnown() || !v.Type().IsObjectType() {
		return cty.NilVal, false
	}
	atys := v.Type().AttributeTypes()
	if len(atys) != 1 {
		return cty.NilVal, false
	}
	if _, ok := atys[key]; !ok {
		return cty.NilVal, false
	}
	body := v.GetAttr(key)
	if body.IsNull() || !body.Type().IsObjectType() {
		return cty.NilVal, false
	}
	return body, true
}

func stringAttr(body cty.Value, name string) (string, bool) {
	if !body.Type().HasAttribute(name) {
		return "", false
	}
	v := body.GetAttr(name)
	if v.IsNull() || v.Type() != cty.String {
		return "", false
	}
	return v.AsString(), true
}

// PlaceholderFrom decodes a job placeholder. ok is false when v is not one.
func PlaceholderFrom(v cty.Value) (Placeholder, bool, error) {
	body, ok := tagged(v, jobKey)
	if !ok {
		return Placeholder{}, false, nil
	}
	id, ok := stringAttr(body, "id")
	if !ok {
		return Placeholder{}, true, fmt.Errorf("job placeholder without id")
	}
	p := Placeholder{ID: id}
	p.Output, p.HasOutput = stringAttr(body, "output")
	if body.Type().HasAttribute("processes") {
		n := body.GetAttr("processes")
		if !n.IsNull() && n.Type() == cty.Number {
			i, acc := n.AsBigFloat().Int64()
			if acc != big.Exact {
				return Placeholder{}, true, fmt.Errorf("job placeholder %s: invalid process count", id)
			}
			p.Processes = int(i)
		}
	}
	return p, true, nil
}

// FactFrom decodes a runtime fact placeholder.
func FactFrom(v cty.Value) (classad.Attr, bool, error) {
	body, ok := tagged(v, factKey)
	if !ok {
		return classad.Attr{}, false, nil
	}
	name, ok := stringAttr(body, "attr")
	if !ok {
		return classad.Attr{}, true, fmt.Errorf("fact placeholder without attr")
	}
	srcName, _ := stringAttr(body, "source")
	src, err := classad.ParseSource(srcName)
	if err != nil {
		return classad.Attr{}, true, err
	}
	return classad.Attr{Name: name, Source: src}, true, nil
}

var (
	jobnameMacro = regexp.MustCompile(`(?i)\$\(jobname\)`)
	processMacro = regexp.MustCompile(`(?i)\$\(process\)`)
)

// OutputFiles expands an output pattern into concrete file names: one per
// process, or a single one when processes is 0.
func OutputFiles(id, pattern string, processes int) []string {
	base := jobnameMacro.ReplaceAllLiteralString(pattern, id)
	n := processes
	if n < 1 {
		n = 1
	}
	files := make([]string, 0, n)
	for p := 0; p < n; p++ {
		files = append(files, processMacro.ReplaceAllLiteralString(base, strconv.Itoa(p)))
	}
	return files
}
