// Package sqlconn implements conn.Connection over database/sql through sqlx
// with the lib/pq driver.
package sqlconn

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
	"go.uber.org/atomic"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
)

const (
	driverName  = "postgres"
	pingBackoff = 100 * time.Millisecond
)

type Conn struct {
	dsn  string
	opts conn.ClientOptions

	mu        sync.Mutex
	db        *sqlx.DB
	connected *atomic.Bool
}

var (
	_ conn.Connection = &Conn{}
	_ conn.TxBeginner = &Conn{}
)

// New prepares a connection for dsn, which may be a postgres:// URL or a
// keyword/value string. Nothing is dialed until Connect.
func New(dsn string, opts conn.ClientOptions) (*Conn, error) {
	full, err := withClientOptions(dsn, opts)
	if err != nil {
		return nil, err
	}
	return &Conn{
		dsn:       full,
		opts:      opts,
		connected: atomic.NewBool(false),
	}, nil
}

// Factory is a conn.Factory building sqlx-backed connections.
func Factory(dsn string, opts conn.ClientOptions) (conn.Connection, error) {
	return New(dsn, opts)
}

// withClientOptions folds application_name and connect_timeout into dsn.
func withClientOptions(dsn string, opts conn.ClientOptions) (string, error) {
	params := map[string]string{}
	if opts.ApplicationName != "" {
		params["application_name"] = opts.ApplicationName
	}
	if opts.ConnectTimeout > 0 {
		secs := int(opts.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		params["connect_timeout"] = strconv.Itoa(secs)
	}
	if len(params) == 0 {
		return dsn, nil
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", errors.Wrap(err, "parse connection url")
		}
		q := u.Query()
		for k, v := range params {
			if q.Get(k) == "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	var sb strings.Builder
	sb.WriteString(dsn)
	for _, k := range []string{"application_name", "connect_timeout"} {
		v, ok := params[k]
		if !ok || strings.Contains(dsn, k+"=") {
			continue
		}
		fmt.Fprintf(&sb, " %s='%s'", k, strings.ReplaceAll(v, "'", `\'`))
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Connect opens the database handle and pings it, retrying with a
// fibonacci backoff up to ConnectRetries times.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := sqlx.Open(driverName, c.dsn)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	if c.opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(c.opts.MaxConns))
	}

	// sql is lazy, ping to actually dial
	backoff := retry.WithMaxRetries(c.opts.ConnectRetries, retry.NewFibonacci(pingBackoff))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			spqrlog.Zero.Debug().Err(err).Msg("ping failed")
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "ping database")
	}

	c.db = db
	c.connected.Store(true)
	return nil
}

func (c *Conn) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.connected.Store(false)
	return err
}

func (c *Conn) current() (*sqlx.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, conn.ErrNotConnected
	}
	return c.db, nil
}

func (c *Conn) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	db, err := c.current()
	if err != nil {
		return nil, err
	}
	return execute(ctx, db, req)
}

func (c *Conn) Begin(ctx context.Context) (conn.TxConn, error) {
	db, err := c.current()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txConn{tx: tx}, nil
}

func execute(ctx context.Context, q sqlx.ExtContext, req conn.Request) (conn.Result, error) {
	raw, err := conn.ToRawArgs(req.Args)
	if err != nil {
		return nil, err
	}

	if !req.Op.ReturnsRows() {
		res, err := q.ExecContext(ctx, raw.SQL, raw.Values...)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		return conn.ExecResult{RowsAffected: n}, nil
	}

	rows, err := q.QueryxContext(ctx, raw.SQL, raw.Values...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	out := conn.Rows{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type txConn struct {
	tx *sqlx.Tx
}

func (t *txConn) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	return execute(ctx, t.tx, req)
}

func (t *txConn) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *txConn) Rollback(context.Context) error {
	return t.tx.Rollback()
}
