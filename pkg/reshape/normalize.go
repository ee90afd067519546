package reshape

import "github.com/pg-sharding/readreplicas/pkg/conn"

// Normalize brings a result obtained by executing req directly on a
// connection into the shape the caller of req expects: model-less raw
// query rows get their values enveloped and a fluent data path, if any,
// is projected.
func Normalize(req conn.Request, res conn.Result) (conn.Result, error) {
	if req.Op.IsRawQuery() && req.Model == "" {
		res = WrapRawResult(res)
	}
	if len(req.DataPath) == 0 {
		return res, nil
	}
	return Project(res, req.DataPath)
}

// Unwrap returns a copy of rows with every conn.TypedValue replaced by its
// value.
func Unwrap(rows conn.Rows) conn.Rows {
	out := make(conn.Rows, 0, len(rows))
	for _, row := range rows {
		plain := make(conn.Row, len(row))
		for k, v := range row {
			if tv, ok := v.(conn.TypedValue); ok {
				v = tv.Value
			}
			plain[k] = v
		}
		out = append(out, plain)
	}
	return out
}
