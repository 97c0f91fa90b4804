package key

// Compare orders a against the constraint b and returns -1, 0 or 1.
//
// The fields of a are visited in order. A field whose value in b is null or
// undefined is skipped. If a's value is null or undefined while b's is not,
// a sorts after b and Compare returns 1. Otherwise the values are compared
// in their natural order and the first difference decides. If every
// constrained field ties, Compare returns 0.
//
// The operands have fixed roles: a is the stored row key or shard bound, b
// is the filter. Swapping them is not the same as negating the result.
func Compare(a, b Key) int {
	for _, f := range a {
		bv, ok := b.Get(f.Name)
		if !ok || bv.IsNull() {
			continue
		}
		if f.Value.IsNullish() {
			return 1
		}
		if c := compareValues(f.Value, bv); c != 0 {
			return c
		}
	}
	return 0
}

// Matches reports whether row satisfies the equality constraint eq: every
// defined field of eq must equal the row's field exactly. A null field in
// eq requires the row field to be null; a row without the field never
// matches it.
func Matches(row, eq Key) bool {
	for _, f := range eq {
		if f.Value.IsUndefined() {
			continue
		}
		rv, ok := row.Get(f.Name)
		if !ok {
			return false
		}
		if !rv.Equal(f.Value) {
			return false
		}
	}
	return true
}

// Between reports whether row lies within [from, to] under [Compare].
func Between(row, from, to Key) bool {
	return Compare(row, from) >= 0 && Compare(row, to) <= 0
}
