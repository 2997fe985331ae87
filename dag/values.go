package dag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Value is a submit directive or job variable value. The set of
// implementations is closed: Scalar, List and Map. A nil Value in Vars
// means the directive is explicitly absent.
type Value interface {
	// submitText renders the value for a submit description file.
	submitText() string
	// varText renders the value for a VARS line, before escaping.
	varText() string
	// directiveArgs returns one entry per directive line.
	directiveArgs() []string
}

// Vars maps variable names to values.
type Vars map[string]Value

// Clone returns a shallow copy.
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Scalar is a single token.
type Scalar string

// String returns s as a Scalar.
func String(s string) Scalar { return Scalar(s) }

// Int returns n as a Scalar.
func Int(n int) Scalar { return Scalar(strconv.Itoa(n)) }

// Float returns f as a Scalar.
func Float(f float64) Scalar { return Scalar(strconv.FormatFloat(f, 'g', -1, 64)) }

// Bool returns b as a Scalar.
func Bool(b bool) Scalar { return Scalar(strconv.FormatBool(b)) }

// Int parses the scalar as an integer.
func (s Scalar) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	return n, err == nil
}

func (s Scalar) submitText() string      { return string(s) }
func (s Scalar) varText() string         { return string(s) }
func (s Scalar) directiveArgs() []string { return []string{string(s)} }

// List is an ordered sequence, such as a job's arguments.
type List []Scalar

// Strings builds a List.
func Strings(items ...string) List {
	out := make(List, len(items))
	for i, s := range items {
		out[i] = Scalar(s)
	}
	return out
}

func (l List) submitText() string {
	parts := make([]string, len(l))
	for i, item := range l {
		parts[i] = "'" + strings.ReplaceAll(string(item), "'", "''") + "'"
	}
	return quoteSubmit(strings.Join(parts, " "))
}

func (l List) varText() string {
	parts := make([]string, len(l))
	for i, item := range l {
		parts[i] = varUnsafe.ReplaceAllString(string(item), "_")
	}
	return strings.Join(parts, " ")
}

func (l List) directiveArgs() []string {
	out := make([]string, len(l))
	for i, item := range l {
		out[i] = string(item)
	}
	return out
}

// Map is a string-keyed set of values, such as a job's environment.
type Map map[string]Scalar

// Env builds a Map.
func Env(m map[string]string) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Scalar(v)
	}
	return out
}

func (m Map) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m Map) submitText() string {
	keys := m.keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "='" + strings.ReplaceAll(string(m[k]), "'", "''") + "'"
	}
	return quoteSubmit(strings.Join(parts, " "))
}

func (m Map) varText() string {
	keys := m.keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + varUnsafe.ReplaceAllString(string(m[k]), "_")
	}
	return strings.Join(parts, " ")
}

func (m Map) directiveArgs() []string { return []string{m.varText()} }

// DAGMan cannot quote inside VARS values, so spaces and single quotes
// inside list and map elements are replaced.
var varUnsafe = regexp.MustCompile(`[ ']`)

func quoteSubmit(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func escapeVar(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
