package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/readreplicas/pkg/config"
	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/conn/pgxconn"
	"github.com/pg-sharding/readreplicas/pkg/conn/sqlconn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/operation"
	"github.com/pg-sharding/readreplicas/router/qrouter"
)

func TestFactoryFor(t *testing.T) {
	assert := assert.New(t)

	for _, driver := range []string{"", config.DriverPgx, config.DriverPostgres} {
		f, err := factoryFor(driver)
		assert.NoError(err)
		assert.NotNil(f)
	}

	_, err := factoryFor("mysql")
	assert.ErrorIs(err, spqrerror.ErrConfiguration)
}

func TestClientOptionsFromConfig(t *testing.T) {
	assert := assert.New(t)

	rcfg := &config.Router{
		Datasource: "db",
		PrimaryURL: "postgres://primary/db",
		Replicas:   config.ReplicasCfg{URL: config.URLList{"postgres://r1/db", "postgres://r2/db"}},
		ReplicaClient: config.ReplicaClientCfg{
			ApplicationName: "rr",
			ConnectTimeout:  "2s",
		},
		DefaultReadTarget: "primary",
		ReadOperations:    []string{"findMany", "$queryRaw"},
		InspectRawSQL:     true,
		Parallelism:       2,
	}

	opts, err := clientOptions(rcfg)
	require.NoError(t, err)

	assert.Equal("db", opts.Datasource)
	assert.IsType(&pgxconn.Conn{}, opts.Primary)
	assert.Equal([]string{"postgres://r1/db", "postgres://r2/db"}, opts.URLs)
	assert.Equal(qrouter.TargetPrimary, opts.DefaultReadTarget)
	assert.Equal([]operation.Operation{operation.FindMany, operation.QueryRaw}, opts.ReadOperations)
	assert.Equal(2*time.Second, opts.ClientOptions.ConnectTimeout)
	assert.Equal("db", opts.ClientOptions.Datasource)
	assert.True(opts.InspectRawSQL)
	assert.Equal(2, opts.Parallelism)

	rcfg.Driver = config.DriverPostgres
	opts, err = clientOptions(rcfg)
	require.NoError(t, err)
	assert.IsType(&sqlconn.Conn{}, opts.Primary)

	cl, err := newClient(rcfg)
	require.NoError(t, err)
	assert.Equal(2, cl.Router().Pool().Size())
}

func TestRawRequest(t *testing.T) {
	sqlText = "SELECT $1, $2"
	defer func() { sqlText = "" }()

	req := rawRequest(operation.QueryRaw, []string{"a", "b"})
	assert.Equal(t, conn.Request{
		Op:   operation.QueryRaw,
		Args: conn.RawArgs{SQL: "SELECT $1, $2", Values: []any{"a", "b"}},
	}, req)
}

func TestPrintResult(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	rows := conn.Rows{{"id": conn.TypedValue{Value: 1}}}
	require.NoError(t, printResult(&buf, rows))
	assert.JSONEq(`[{"id": 1}]`, buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, conn.ExecResult{RowsAffected: 3}))
	assert.JSONEq(`{"RowsAffected": 3}`, buf.String())
}
