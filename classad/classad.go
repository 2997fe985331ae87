// Package classad reads the runtime facts a scheduler hands to a running
// job: the job's own ClassAd and the executing machine's ClassAd. It also
// decides, once at startup, whether the process is building a graph or
// running as one of its jobs.
package classad

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/zclconf/go-cty/cty"
)

// Source selects which ClassAd a fact is read from.
type Source int

const (
	// JobAd is the ad describing the running job.
	JobAd Source = iota
	// MachineAd is the ad describing the machine the job runs on.
	MachineAd
)

// EnvVar returns the environment variable that names the ad file.
func (s Source) EnvVar() string {
	if s == MachineAd {
		return "_CONDOR_MACHINE_AD"
	}
	return "_CONDOR_JOB_AD"
}

func (s Source) String() string {
	if s == MachineAd {
		return "machine"
	}
	return "job"
}

// ParseSource is the inverse of Source.String.
func ParseSource(name string) (Source, error) {
	switch name {
	case "job":
		return JobAd, nil
	case "machine":
		return MachineAd, nil
	default:
		return 0, fmt.Errorf("unknown classad source %q", name)
	}
}

// Attr names one attribute in one ad. Passing an Attr as a job argument
// defers its lookup until the job runs.
type Attr struct {
	Name   string
	Source Source
}

// JobAttr refers to an attribute of the running job's ad.
func JobAttr(name string) Attr {
	return Attr{Name: name, Source: JobAd}
}

// MachineAttr refers to an attribute of the executing machine's ad.
func MachineAttr(name string) Attr {
	return Attr{Name: name, Source: MachineAd}
}

// ProcID is the process index of the running job within its cluster.
var ProcID = JobAttr("ProcId")

func (a Attr) String() string {
	return fmt.Sprintf("%s[%s]", a.Source.EnvVar(), a.Name)
}

// Ad is a parsed ClassAd. Quoted values are strings, bare integers are
// numbers, anything else is kept as its raw text.
type Ad map[string]cty.Value

var (
	quotedLine = regexp.MustCompile(`^(\w+)\s*=\s*"(.*)"$`)
	intLine    = regexp.MustCompile(`^(\w+)\s*=\s*(\d+)$`)
	rawLine    = regexp.MustCompile(`^(\w+)\s*=\s*(.*)$`)
)

// Parse reads a ClassAd file. Lines matching none of the accepted forms are
// skipped. Escapes inside quoted strings are left as they are.
func Parse(r io.Reader) (Ad, error) {
	ad := make(Ad)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := quotedLine.FindStringSubmatch(line); m != nil {
			ad[m[1]] = cty.StringVal(m[2])
			continue
		}
		if m := intLine.FindStringSubmatch(line); m != nil {
			if n, err := strconv.ParseInt(m[2], 10, 64); err == nil {
				ad[m[1]] = cty.NumberIntVal(n)
				continue
			}
		}
		if m := rawLine.FindStringSubmatch(line); m != nil {
			ad[m[1]] = cty.StringVal(m[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classad: %w", err)
	}
	return ad, nil
}
