package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"funcov.dev/pkg/funcov/internal/adapter"
	m "funcov.dev/pkg/funcov/internal/model"
)

// maxParallelReads bounds concurrent run log reads during aggregation.
const maxParallelReads = 8

// Aggregator folds run logs into per-binary coverage records. Records are
// derived on every request; the run logs stay the only durable state.
type Aggregator interface {
	// Aggregate reads every run log in dir and returns one record per
	// binary, ordered by binary name. Unreadable logs are skipped with a
	// warning; a missing dir is an error.
	Aggregate(ctx context.Context, dir m.Path) ([]m.CoverageRecord, error)
}

type aggregator struct {
	runlogs adapter.RunLogStore
}

// NewAggregator constructs an Aggregator reading from the provided store.
func NewAggregator(runlogs adapter.RunLogStore) Aggregator {
	return &aggregator{runlogs: runlogs}
}

func (a *aggregator) Aggregate(ctx context.Context, dir m.Path) ([]m.CoverageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths, err := a.runlogs.List(dir)
	if err != nil {
		return nil, err
	}

	logs, err := a.readAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	return foldRunLogs(logs), nil
}

// readAll loads the listed run logs in parallel, keeping the directory
// order so aggregation stays deterministic.
func (a *aggregator) readAll(ctx context.Context, paths []m.Path) ([]*m.RunLog, error) {
	logs := make([]*m.RunLog, len(paths))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelReads)

	for i, path := range paths {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			log, err := a.runlogs.Read(path)
			if err != nil {
				slog.Warn("skipping unreadable run log", "path", path, "error", err)
				return nil
			}

			logs[i] = &log

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return logs, nil
}

// coverageBucket accumulates the fold state for one target binary.
type coverageBucket struct {
	identity   m.BinaryIdentity
	symbols    []m.Symbol
	names      map[string]bool
	called     map[string]bool
	unresolved map[string]bool
	ignored    map[string]bool
	runs       int
}

func foldRunLogs(logs []*m.RunLog) []m.CoverageRecord {
	buckets := map[m.Path]*coverageBucket{}
	order := []m.Path{}

	for _, log := range logs {
		if log == nil {
			continue
		}

		bucket, ok := buckets[log.Identity.Target]
		if !ok {
			bucket = &coverageBucket{
				identity:   log.Identity,
				names:      map[string]bool{},
				called:     map[string]bool{},
				unresolved: map[string]bool{},
				ignored:    map[string]bool{},
			}
			buckets[log.Identity.Target] = bucket
			order = append(order, log.Identity.Target)
		}

		bucket.absorb(log)
	}

	records := make([]m.CoverageRecord, 0, len(order))
	for _, target := range order {
		records = append(records, buckets[target].record())
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Identity.Name() != records[j].Identity.Name() {
			return records[i].Identity.Name() < records[j].Identity.Name()
		}

		return records[i].Identity.Target < records[j].Identity.Target
	})

	return records
}

func (b *coverageBucket) absorb(log *m.RunLog) {
	if log.Identity.Digest != b.identity.Digest {
		slog.Warn("run logs disagree on binary digest, keeping the first",
			"target", b.identity.Target, "kept", b.identity.Digest, "seen", log.Identity.Digest)
	}

	b.unionSymbols(log.Symbols)
	b.markCalled(log)
	b.runs++
}

// unionSymbols widens the function universe with names first seen in this
// log. Ascending-address order is restored so address resolution keeps
// working over the union.
func (b *coverageBucket) unionSymbols(set m.SymbolSet) {
	for _, sym := range set.Symbols {
		if b.names[sym.Name] {
			continue
		}

		b.names[sym.Name] = true
		b.symbols = append(b.symbols, sym)
	}

	sort.SliceStable(b.symbols, func(i, j int) bool {
		return b.symbols[i].Start < b.symbols[j].Start
	})

	for _, name := range set.Ignored {
		b.ignored[name] = true
	}
}

// markCalled matches events against the symbol universe. Named events match
// by name, anonymous ones resolve by address; misses accumulate as distinct
// unresolved entries and never invent functions.
func (b *coverageBucket) markCalled(log *m.RunLog) {
	set := m.SymbolSet{Symbols: b.symbols}

	for _, event := range log.Events {
		if event.Name != "" {
			if b.names[event.Name] {
				b.called[event.Name] = true
			} else {
				b.unresolved[event.Name] = true
			}

			continue
		}

		if sym, ok := set.Resolve(event.Addr); ok {
			b.called[sym.Name] = true
		} else {
			b.unresolved[fmt.Sprintf("0x%x", event.Addr)] = true
		}
	}
}

func (b *coverageBucket) record() m.CoverageRecord {
	functions := make([]m.FunctionCoverage, 0, len(b.symbols))

	for _, sym := range b.symbols {
		status := m.StatusUncalled
		if b.called[sym.Name] {
			status = m.StatusCalled
		}

		functions = append(functions, m.FunctionCoverage{Name: sym.Name, Status: status})
	}

	return m.CoverageRecord{
		Identity:          b.identity,
		Functions:         functions,
		Unresolved:        len(b.unresolved),
		Runs:              b.runs,
		IgnoredDuplicates: len(b.ignored),
	}
}
