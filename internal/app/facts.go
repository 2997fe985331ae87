package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/condordag/classad"
)

// Facts prints attributes of the running job's ClassAds. Without names,
// every attribute of the ad selected by src is printed.
func (a *App) Facts(ctx context.Context, src classad.Source, names ...string) error {
	ctx = a.context(ctx)
	ad, err := a.facts.Ad(ctx, src)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		for name := range ad {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	for _, name := range names {
		v, err := a.facts.Get(ctx, classad.Attr{Name: name, Source: src})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.outW, "%s = %s\n", name, hclwrite.TokensForValue(v).Bytes())
	}
	return nil
}
