package blobindex

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// DefaultParallelism is the number of shards fetched concurrently per batch
// when QueryOptions.Parallelism is not positive.
const DefaultParallelism = 8

// AndOr selects how the clauses of a query combine.
type AndOr int

const (
	// And requires every clause to hold. With no clauses every row matches.
	And AndOr = iota
	// Or requires at least one clause to hold. With no clauses nothing matches.
	Or
)

func (a AndOr) String() string {
	if a == Or {
		return "or"
	}
	return "and"
}

// Order selects the order in which candidate shards are visited.
type Order int

const (
	// Asc visits shards in manifest order.
	Asc Order = iota
	// Desc visits shards in reverse manifest order. Rows within a shard
	// keep their file order.
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// QueryOptions tunes a query. The zero value is a full ascending And query
// with the default parallelism.
type QueryOptions[R any] struct {
	AndOr       AndOr
	Order       Order
	Parallelism int

	// IsComplete is called with the accumulated rows after each batch.
	// Returning true stops the query; later batches are never fetched.
	IsComplete func(rows []R) bool
}

// Limit returns an IsComplete predicate that stops once n rows have
// accumulated. The final batch may push the result past n.
func Limit[R any](n int) func([]R) bool {
	return func(rows []R) bool {
		return len(rows) >= n
	}
}

// Result is the outcome of a query.
type Result[R any] struct {
	// Rows holds the matching rows, grouped by shard in visiting order.
	Rows []R

	// Candidates is the number of shards whose bounds overlapped the query.
	Candidates int

	// Scanned is the number of candidate shards that were attempted.
	Scanned int

	// Failed lists shards that could not be loaded. They contributed no
	// rows, so Rows may be incomplete.
	Failed []ShardError

	// Stopped reports that IsComplete ended the query before every
	// candidate was scanned.
	Stopped bool
}

// Err joins the shard failures, or returns nil if every shard loaded.
func (r *Result[R]) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i := range r.Failed {
		errs[i] = &r.Failed[i]
	}
	return errors.Join(errs...)
}

type shardLoad[R any] struct {
	rows []R
	err  error
}

// Query returns the rows matching filters.
//
// Candidate shards are chosen from the manifest bounds, then fetched in
// batches of opts.Parallelism. Shards within a batch load concurrently but
// their rows are merged in candidate order. A shard that fails to load is
// recorded in Result.Failed and skipped.
//
// The returned error is non-nil only when ctx ends; the partial result
// gathered so far is returned with it.
func (s *Store[R]) Query(ctx context.Context, filters []Filter, opts QueryOptions[R]) (*Result[R], error) {
	clauses := make([]Filter, len(filters))
	for i, f := range filters {
		clauses[i] = f.normalize()
	}

	candidates := s.candidates(clauses, opts.AndOr)
	if opts.Order == Desc {
		slices.Reverse(candidates)
	}
	s.metrics.query(s.dataset, len(candidates))

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	res := &Result[R]{Candidates: len(candidates)}
	for start := 0; start < len(candidates); start += parallelism {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		batch := candidates[start:min(start+parallelism, len(candidates))]
		loads := make([]shardLoad[R], len(batch))

		var wg sync.WaitGroup
		for i, kf := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rows, err := s.loadShard(ctx, kf.File)
				loads[i] = shardLoad[R]{rows: rows, err: err}
			}()
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return res, err
		}

		for i, l := range loads {
			res.Scanned++
			if l.err != nil {
				res.Failed = append(res.Failed, ShardError{File: batch[i].File, Err: l.err})
				continue
			}
			for _, row := range l.rows {
				if s.matches(row, clauses, opts.AndOr) {
					res.Rows = append(res.Rows, row)
				}
			}
		}

		if opts.IsComplete != nil && opts.IsComplete(res.Rows) {
			res.Stopped = res.Scanned < len(candidates)
			break
		}
	}

	s.log().Debug("query done",
		"dataset", s.dataset,
		"clauses", len(clauses),
		"mode", opts.AndOr.String(),
		"order", opts.Order.String(),
		"candidates", res.Candidates,
		"scanned", res.Scanned,
		"failed", len(res.Failed),
		"rows", len(res.Rows))
	return res, nil
}

// Rows returns the rows matching every filter, scanning all candidates in
// ascending order. Shard failures are logged and skipped.
func (s *Store[R]) Rows(ctx context.Context, filters ...Filter) ([]R, error) {
	return s.RowsWith(ctx, filters, QueryOptions[R]{})
}

// RowsWith is like Query but returns only the rows.
func (s *Store[R]) RowsWith(ctx context.Context, filters []Filter, opts QueryOptions[R]) ([]R, error) {
	res, err := s.Query(ctx, filters, opts)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// candidates returns, in manifest order, the shards whose bounds may hold
// rows satisfying the clauses.
func (s *Store[R]) candidates(clauses []Filter, mode AndOr) []KeyFile {
	var out []KeyFile
	for _, kf := range s.manifest.KeyFiles {
		if selects(clauses, mode, func(f Filter) bool { return f.overlaps(kf) }) {
			out = append(out, kf)
		}
	}
	return out
}

func (s *Store[R]) matches(row R, clauses []Filter, mode AndOr) bool {
	k := s.keyOf(row)
	return selects(clauses, mode, func(f Filter) bool {
		return f.matches(k)
	})
}

// selects combines pred over the clauses with And or Or semantics.
func selects(clauses []Filter, mode AndOr, pred func(Filter) bool) bool {
	if mode == Or {
		return slices.ContainsFunc(clauses, pred)
	}
	for _, f := range clauses {
		if !pred(f) {
			return false
		}
	}
	return true
}
