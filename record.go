package blobindex

import (
	"context"

	"github.com/transparencytube/blobindex/key"
)

// OpenRecords opens a dataset whose rows are decoded as generic JSON
// objects. The key fields are the manifest's inIndex columns in column
// order or, when none are flagged, the fields of the first shard's lower
// bound.
func OpenRecords(ctx context.Context, dataset string, opts ...Option) (*Store[Record], error) {
	var fields []string
	s, err := open(ctx, dataset, func(r Record) key.Key {
		return RecordKey(r, fields...)
	}, opts)
	if err != nil {
		return nil, err
	}
	fields = s.manifest.KeyFields()
	return s, nil
}

// RecordKey projects r onto the named fields in order. A field missing
// from r is kept as Undefined, which sorts after every defined value.
func RecordKey(r Record, fields ...string) key.Key {
	k := make(key.Key, len(fields))
	for i, name := range fields {
		v, ok := r[name]
		if !ok {
			k[i] = key.Field{Name: name, Value: key.Undefined()}
			continue
		}
		k[i] = key.Field{Name: name, Value: key.ValueOf(v)}
	}
	return k
}
