package blobindex

import (
	"fmt"

	"github.com/transparencytube/blobindex/key"
)

// Filter is one clause of a query: either an equality constraint or an
// inclusive key range. Construct filters with Eq, Match or Range.
type Filter struct {
	eq       key.Key
	from, to key.Key
	isRange  bool
}

// Eq returns an equality filter. Undefined fields are ignored; a Null
// field matches only rows whose field is null.
func Eq(k key.Key) Filter {
	return Filter{eq: k}
}

// Match is shorthand for Eq(key.Of(kv...)).
func Match(kv ...any) Filter {
	return Eq(key.Of(kv...))
}

// Range returns a filter for rows whose key lies in [from, to] under
// key.Compare. Null or undefined fields in a bound leave that field
// unconstrained on that side.
func Range(from, to key.Key) Filter {
	return Filter{from: from, to: to, isRange: true}
}

// IsRange reports whether f is a range filter.
func (f Filter) IsRange() bool { return f.isRange }

// Key returns the equality constraint of an Eq filter.
func (f Filter) Key() key.Key { return f.eq }

// Bounds returns the bounds of a Range filter.
func (f Filter) Bounds() (from, to key.Key) { return f.from, f.to }

func (f Filter) String() string {
	if f.isRange {
		return fmt.Sprintf("range[%s, %s]", f.from, f.to)
	}
	return "eq" + f.eq.String()
}

// normalize strips undefined fields from equality clauses. Null fields are
// kept: they still constrain matching.
func (f Filter) normalize() Filter {
	if f.isRange {
		return f
	}
	return Filter{eq: f.eq.Normalize()}
}

// overlaps reports whether a shard with the given bounds may hold rows
// matching f. It never reports false for a shard that does hold a match.
//
// Shards are sorted by their key fields in bound order, so only the
// constrained prefix of a filter can prune: a field after an unconstrained
// one may take any value within the shard.
func (f Filter) overlaps(kf KeyFile) bool {
	order := kf.First.Names()
	if f.isRange {
		from, to := prefix(f.from, order), prefix(f.to, order)
		return key.Compare(kf.First, to) <= 0 && key.Compare(kf.Last, from) >= 0
	}
	eq := prefix(f.eq, order)
	return key.Compare(kf.First, eq) <= 0 && key.Compare(kf.Last, eq) >= 0
}

// prefix returns the fields of k that constrain order up to the first key
// field k leaves null or undefined.
func prefix(k key.Key, order []string) key.Key {
	out := make(key.Key, 0, len(order))
	for _, name := range order {
		v, ok := k.Get(name)
		if !ok || v.IsNullish() {
			break
		}
		out = append(out, key.Field{Name: name, Value: v})
	}
	return out
}

// matches reports whether a row key satisfies f.
func (f Filter) matches(row key.Key) bool {
	if f.isRange {
		return key.Between(row, f.from, f.to)
	}
	return key.Matches(row, f.eq)
}
