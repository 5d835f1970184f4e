package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// DefaultWorkers bounds DiscoverAll's concurrency when Options.Workers is
// not positive.
const DefaultWorkers = 4

// DiscoverAll discovers every collection on a bounded worker pool and
// merges the results into one schema. Collections are merged in name
// order, so the result does not depend on scheduling.
func DiscoverAll(ctx context.Context, colls []native.Collection, opts Options) (*ir.Schema, error) {
	sorted := slices.Clone(colls)
	slices.SortFunc(sorted, func(a, b native.Collection) int {
		return strings.Compare(a.Name(), b.Name())
	})

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		slog.Error("discovery worker panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("create discovery pool: %w", err)
	}
	defer pool.Release()

	results := make([]*ir.Schema, len(sorted))
	errs := make([]error, len(sorted))
	var wg sync.WaitGroup
	for i, coll := range sorted {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = Discover(ctx, coll, opts)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit %s: %w", coll.Name(), err)
		}
	}
	wg.Wait()

	for i, s := range results {
		if s == nil && errs[i] == nil {
			errs[i] = fmt.Errorf("discover %s: worker aborted", sorted[i].Name())
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	merged := Merge(results...)
	slog.Info("discovery complete",
		"collections", len(sorted),
		"tables", len(merged.Tables),
	)
	return merged, nil
}

// Merge combines schemas into one, in argument order. A table whose name
// is already taken is renamed with a _2, _3, ... suffix, and every
// reference to it is rewritten.
func Merge(schemas ...*ir.Schema) *ir.Schema {
	out := ir.NewSchema()
	for _, s := range schemas {
		names := s.TableNames()
		taken := make(map[string]bool, len(out.Tables)+len(names))
		for name := range out.Tables {
			taken[name] = true
		}
		for _, name := range names {
			taken[name] = true
		}

		rename := make(map[string]string, len(names))
		for _, name := range names {
			if _, clash := out.Tables[name]; !clash {
				rename[name] = name
				continue
			}
			candidate := name
			for n := 2; taken[candidate]; n++ {
				candidate = fmt.Sprintf("%s_%d", name, n)
			}
			taken[candidate] = true
			rename[name] = candidate
		}

		for _, name := range names {
			out.Tables[rename[name]] = renameTable(s.Tables[name], rename)
		}
		for _, base := range s.Bases {
			out.Bases = append(out.Bases, rename[base])
		}
	}
	return out
}

func renameTable(t ir.Table, rename map[string]string) ir.Table {
	t.Name = rename[t.Name]
	if t.Parent != "" {
		t.Parent = rename[t.Parent]
	}
	if t.ForeignKey != nil {
		fk := *t.ForeignKey
		fk.RefTable = rename[fk.RefTable]
		t.ForeignKey = &fk
	}
	cols := make([]ir.Column, len(t.Columns))
	for i, c := range t.Columns {
		c.Table = t.Name
		cols[i] = c
	}
	t.Columns = cols
	return t
}
