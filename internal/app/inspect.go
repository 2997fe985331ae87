package app

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/worker"
	"github.com/zclconf/go-cty/cty"
)

// Inspect prints the contents of an input or output file as HCL. Input
// files print one job block per call record; with jobID only that record
// is printed. Any other file prints as a single value attribute.
func (a *App) Inspect(_ context.Context, path, jobID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := a.store.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	f := hclwrite.NewEmptyFile()
	body := f.Body()

	records, ok := decodeRecords(v)
	switch {
	case ok && jobID != "":
		rec, found := records[jobID]
		if !found {
			return fmt.Errorf("%w: '%s'", worker.ErrRecordNotFound, jobID)
		}
		appendRecord(body, jobID, rec)
	case ok:
		ids := make([]string, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i, id := range ids {
			if i > 0 {
				body.AppendNewline()
			}
			appendRecord(body, id, records[id])
		}
	case jobID != "":
		return fmt.Errorf("%s holds no call records", path)
	default:
		body.SetAttributeValue("value", v)
	}

	a.logger.Debug("File inspected.", "path", path, "records", len(records))
	_, err = a.outW.Write(f.Bytes())
	return err
}

// decodeRecords reports whether v is an input file: an object whose every
// attribute is a call record.
func decodeRecords(v cty.Value) (map[string]capture.Record, bool) {
	if v.IsNull() || !v.Type().IsObjectType() || len(v.Type().AttributeTypes()) == 0 {
		return nil, false
	}
	out := make(map[string]capture.Record)
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		rec, err := capture.DecodeRecord(ev)
		if err != nil {
			return nil, false
		}
		out[k.AsString()] = rec
	}
	return out, true
}

func appendRecord(body *hclwrite.Body, id string, rec capture.Record) {
	block := body.AppendNewBlock("job", []string{id}).Body()
	block.SetAttributeValue("func", cty.StringVal(rec.Func))

	args := cty.EmptyTupleVal
	if len(rec.Args) > 0 {
		args = cty.TupleVal(rec.Args)
	}
	block.SetAttributeValue("args", args)
	if len(rec.Kwargs) > 0 {
		block.SetAttributeValue("kwargs", cty.ObjectVal(rec.Kwargs))
	}
}
