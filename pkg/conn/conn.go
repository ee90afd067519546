package conn

import (
	"context"
	"errors"
	"time"

	"github.com/pg-sharding/readreplicas/pkg/operation"
)

//go:generate mockgen -source=pkg/conn/conn.go -destination=pkg/mock/conn/conn_mock.go -package=mock_conn

var (
	// ErrUnsupportedArgs is returned by SQL-backed connections when a
	// request does not carry SQL.
	ErrUnsupportedArgs = errors.New("request arguments must carry SQL")
	ErrNotConnected    = errors.New("connection is not established")
)

// Request is a single operation issued by a caller: which operation, on
// which model (empty for raw operations), with which arguments.
type Request struct {
	Op    operation.Operation
	Model string
	Args  any

	// DataPath is the fluent selection path of the request, alternating
	// selector markers and relation names, e.g. ["select", "posts"].
	DataPath []string
}

// RawArgs carries a SQL statement and its positional values. For the
// unsafe raw operations callers pass them as a flat list; NewRawArgs
// splits that form.
type RawArgs struct {
	SQL    string
	Values []any
}

// NewRawArgs builds RawArgs from the spread form (query, values...).
func NewRawArgs(sql string, values ...any) RawArgs {
	return RawArgs{SQL: sql, Values: values}
}

// ToRawArgs extracts SQL arguments from a request argument value. Besides
// RawArgs it accepts the spread form []any{sql, values...} used by the
// unsafe raw operations.
func ToRawArgs(args any) (RawArgs, error) {
	switch a := args.(type) {
	case RawArgs:
		return a, nil
	case *RawArgs:
		if a != nil {
			return *a, nil
		}
	case string:
		return RawArgs{SQL: a}, nil
	case []any:
		if len(a) > 0 {
			if sql, ok := a[0].(string); ok {
				return NewRawArgs(sql, a[1:]...), nil
			}
		}
	}
	return RawArgs{}, ErrUnsupportedArgs
}

// Result is whatever a connection returns for an operation.
type Result any

// Row is a single raw-query row keyed by column name.
type Row map[string]any

// Rows is a raw row set.
type Rows []Row

// ExecResult is the outcome of a statement that does not return rows.
type ExecResult struct {
	RowsAffected int64
}

// TypedValue is the envelope a raw-query field is rehydrated from. Type is
// left unset when the connection does not report one.
type TypedValue struct {
	Type  *string
	Value any
}

// Connection is a fully functional database client.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Execute(ctx context.Context, req Request) (Result, error)
}

// TxConn is a connection bound to one open transaction.
type TxConn interface {
	Execute(ctx context.Context, req Request) (Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner is implemented by connections able to open transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (TxConn, error)
}

// ClientOptions are shared settings passed to a Factory for every replica
// built from a URL.
type ClientOptions struct {
	Datasource      string
	ApplicationName string
	MaxConns        int32
	ConnectTimeout  time.Duration
	ConnectRetries  uint64
}

// Factory builds a connection for a URL. It must not perform I/O; the
// connection is dialed on Connect.
type Factory func(url string, opts ClientOptions) (Connection, error)
