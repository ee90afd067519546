package conn_test

import (
	"testing"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/stretchr/testify/assert"
)

func TestToRawArgs(t *testing.T) {
	assert := assert.New(t)

	for _, tt := range []struct {
		in  any
		exp conn.RawArgs
	}{
		{in: conn.NewRawArgs("SELECT $1", 1), exp: conn.RawArgs{SQL: "SELECT $1", Values: []any{1}}},
		{in: &conn.RawArgs{SQL: "SELECT 1"}, exp: conn.RawArgs{SQL: "SELECT 1"}},
		{in: "SELECT 2", exp: conn.RawArgs{SQL: "SELECT 2"}},
		{in: []any{"SELECT $1, $2", "a", 2}, exp: conn.RawArgs{SQL: "SELECT $1, $2", Values: []any{"a", 2}}},
	} {
		got, err := conn.ToRawArgs(tt.in)
		assert.NoError(err)
		assert.Equal(tt.exp, got)
	}

	for _, bad := range []any{nil, 42, []any{}, []any{1, 2}, (*conn.RawArgs)(nil), map[string]any{"where": 1}} {
		_, err := conn.ToRawArgs(bad)
		assert.ErrorIs(err, conn.ErrUnsupportedArgs)
	}
}
