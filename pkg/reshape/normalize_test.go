package reshape_test

import (
	"testing"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/operation"
	"github.com/pg-sharding/readreplicas/pkg/reshape"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeRawQuery(t *testing.T) {
	assert := assert.New(t)

	req := conn.Request{Op: operation.QueryRaw, Args: conn.NewRawArgs("SELECT 1 AS n")}
	res, err := reshape.Normalize(req, conn.Rows{{"n": 1}})
	assert.NoError(err)
	assert.Equal(conn.Rows{{"n": conn.TypedValue{Value: 1}}}, res)

	// idempotent
	res, err = reshape.Normalize(req, res)
	assert.NoError(err)
	assert.Equal(conn.Rows{{"n": conn.TypedValue{Value: 1}}}, res)
}

func TestNormalizeModelQueryUntouched(t *testing.T) {
	assert := assert.New(t)

	req := conn.Request{Op: operation.FindMany, Model: "User"}
	rows := conn.Rows{{"id": 1}}

	res, err := reshape.Normalize(req, rows)
	assert.NoError(err)
	assert.Equal(conn.Rows{{"id": 1}}, res)
}

func TestNormalizeDataPath(t *testing.T) {
	assert := assert.New(t)

	req := conn.Request{
		Op:       operation.FindUnique,
		Model:    "User",
		DataPath: []string{"select", "posts"},
	}
	res, err := reshape.Normalize(req, map[string]any{"posts": []any{"p1"}})
	assert.NoError(err)
	assert.Equal([]any{"p1"}, res)
}

func TestUnwrap(t *testing.T) {
	assert := assert.New(t)

	wrapped := conn.Rows{{"n": conn.TypedValue{Value: 1}, "raw": "x"}}
	assert.Equal(conn.Rows{{"n": 1, "raw": "x"}}, reshape.Unwrap(wrapped))
	assert.Equal(conn.Rows{{"n": conn.TypedValue{Value: 1}, "raw": "x"}}, wrapped)
}
