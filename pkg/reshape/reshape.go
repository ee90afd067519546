package reshape

import (
	"fmt"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
)

// WrapRawRows puts every field of every row into a conn.TypedValue with an
// unset type, in place. Values already enveloped are left alone.
func WrapRawRows(rows conn.Rows) conn.Rows {
	for _, row := range rows {
		wrapRow(row)
	}
	return rows
}

func wrapRow(row map[string]any) {
	for k, v := range row {
		if _, ok := v.(conn.TypedValue); ok {
			continue
		}
		row[k] = conn.TypedValue{Type: nil, Value: v}
	}
}

// WrapRawResult applies WrapRawRows when res is a raw row set and returns
// res unchanged otherwise.
func WrapRawResult(res conn.Result) conn.Result {
	switch rows := res.(type) {
	case conn.Rows:
		return WrapRawRows(rows)
	case []conn.Row:
		return WrapRawRows(conn.Rows(rows))
	case []map[string]any:
		for _, row := range rows {
			wrapRow(row)
		}
		return rows
	default:
		return res
	}
}

// Project walks a selection path over res. The path alternates a selector
// marker and a field name; each pair descends one level. When the current
// value is a sequence the step is applied to every element and the results
// are flattened into one sequence. Missing fields yield nil.
func Project(res any, path []string) (any, error) {
	if len(path)%2 != 0 {
		return nil, spqrerror.Newf(spqrerror.RR_INVALID_OPERATION,
			"selection path %v must consist of selector/field pairs", path)
	}

	cur := res
	for i := 0; i < len(path); i += 2 {
		field := path[i+1]
		next, err := step(cur, field)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func step(cur any, field string) (any, error) {
	switch v := cur.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v[field], nil
	case conn.Row:
		return v[field], nil
	}
	if seq, ok := asSeq(cur); ok {
		return flatMap(seq, field)
	}
	return nil, fmt.Errorf("cannot select field %q from %T", field, cur)
}

// asSeq views every row-set shape as a []any.
func asSeq(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case conn.Rows:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []conn.Row:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}

func flatMap(seq []any, field string) (any, error) {
	out := make([]any, 0, len(seq))
	for _, item := range seq {
		sub, err := step(item, field)
		if err != nil {
			return nil, err
		}
		if inner, ok := asSeq(sub); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}
