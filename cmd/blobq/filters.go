package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/transparencytube/blobindex"
	"github.com/transparencytube/blobindex/key"
)

// filterSpec is the textual form of a query, shared by flags and HTTP
// query parameters.
type filterSpec struct {
	eq    []string // name=value pairs, combined into one equality clause
	where []string // JSON objects, one equality clause each
	from  string   // JSON object, lower range bound
	to    string   // JSON object, upper range bound
	or    bool
	desc  bool
}

// filters builds the query clauses f describes.
func (f *filterSpec) filters() ([]blobindex.Filter, error) {
	var out []blobindex.Filter

	if len(f.eq) > 0 {
		var k key.Key
		for _, pair := range f.eq {
			name, raw, ok := strings.Cut(pair, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: -eq %q: want name=value", blobindex.ErrInvalidFilter, pair)
			}
			k = k.With(name, parseValue(raw))
		}
		out = append(out, blobindex.Eq(k))
	}

	for _, obj := range f.where {
		k, err := parseKey(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: -where: %w", blobindex.ErrInvalidFilter, err)
		}
		out = append(out, blobindex.Eq(k))
	}

	if f.from != "" || f.to != "" {
		from, err := parseKey(f.from)
		if err != nil {
			return nil, fmt.Errorf("%w: -from: %w", blobindex.ErrInvalidFilter, err)
		}
		to, err := parseKey(f.to)
		if err != nil {
			return nil, fmt.Errorf("%w: -to: %w", blobindex.ErrInvalidFilter, err)
		}
		out = append(out, blobindex.Range(from, to))
	}
	return out, nil
}

// options maps the mode flags onto query options.
func (f *filterSpec) options(parallelism, limit int) blobindex.QueryOptions[blobindex.Record] {
	opts := blobindex.QueryOptions[blobindex.Record]{Parallelism: parallelism}
	if f.or {
		opts.AndOr = blobindex.Or
	}
	if f.desc {
		opts.Order = blobindex.Desc
	}
	if limit > 0 {
		opts.IsComplete = blobindex.Limit[blobindex.Record](limit)
	}
	return opts
}

// parseValue reads a JSON scalar, falling back to the raw text as a
// string. "null" is a null value; an empty value is undefined.
func parseValue(raw string) key.Value {
	if raw == "" {
		return key.Undefined()
	}
	var v key.Value
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return key.String(raw)
}

// parseKey reads a JSON object as an ordered key. An empty string is an
// empty key.
func parseKey(obj string) (key.Key, error) {
	if strings.TrimSpace(obj) == "" {
		return key.Key{}, nil
	}
	var k key.Key
	if err := json.Unmarshal([]byte(obj), &k); err != nil {
		return nil, err
	}
	if k == nil {
		return nil, errors.New("want a JSON object")
	}
	return k, nil
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
