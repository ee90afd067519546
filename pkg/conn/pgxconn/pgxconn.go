// Package pgxconn implements conn.Connection on top of a pgx connection pool.
package pgxconn

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
	"go.uber.org/atomic"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
)

const pingBackoff = 100 * time.Millisecond

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Conn struct {
	url  string
	opts conn.ClientOptions
	cfg  *pgxpool.Config

	mu        sync.Mutex
	pool      *pgxpool.Pool
	connected *atomic.Bool
}

var (
	_ conn.Connection = &Conn{}
	_ conn.TxBeginner = &Conn{}
)

// New parses url and prepares a pool configuration. No connection is made
// until Connect.
func New(url string, opts conn.ClientOptions) (*Conn, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse connection url")
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}

	return &Conn{
		url:       url,
		opts:      opts,
		cfg:       cfg,
		connected: atomic.NewBool(false),
	}, nil
}

// Factory is a conn.Factory building pgx-backed connections.
func Factory(url string, opts conn.ClientOptions) (conn.Connection, error) {
	return New(url, opts)
}

// Connected reports whether the pool is open.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Connect opens the pool and pings the server, retrying the ping with a
// fibonacci backoff up to ConnectRetries times. Connecting an open
// connection is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, c.cfg)
	if err != nil {
		return errors.Wrapf(err, "open pool to %s", c.cfg.ConnConfig.Host)
	}

	backoff := retry.WithMaxRetries(c.opts.ConnectRetries, retry.NewFibonacci(pingBackoff))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			spqrlog.Zero.Debug().
				Str("host", c.cfg.ConnConfig.Host).
				Err(err).
				Msg("ping failed")
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		pool.Close()
		return errors.Wrapf(err, "ping %s", c.cfg.ConnConfig.Host)
	}

	c.pool = pool
	c.connected.Store(true)
	spqrlog.Zero.Debug().
		Str("host", c.cfg.ConnConfig.Host).
		Int32("max conns", c.cfg.MaxConns).
		Msg("pgx pool connected")
	return nil
}

// Disconnect closes the pool. Disconnecting a closed connection is a no-op.
func (c *Conn) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		return nil
	}
	c.pool.Close()
	c.pool = nil
	c.connected.Store(false)
	return nil
}

func (c *Conn) current() (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return nil, conn.ErrNotConnected
	}
	return c.pool, nil
}

func (c *Conn) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	pool, err := c.current()
	if err != nil {
		return nil, err
	}
	return execute(ctx, pool, req)
}

func (c *Conn) Begin(ctx context.Context) (conn.TxConn, error) {
	pool, err := c.current()
	if err != nil {
		return nil, err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txConn{tx: tx}, nil
}

func execute(ctx context.Context, q querier, req conn.Request) (conn.Result, error) {
	raw, err := conn.ToRawArgs(req.Args)
	if err != nil {
		return nil, err
	}

	if !req.Op.ReturnsRows() {
		tag, err := q.Exec(ctx, raw.SQL, raw.Values...)
		if err != nil {
			return nil, err
		}
		return conn.ExecResult{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := q.Query(ctx, raw.SQL, raw.Values...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make(conn.Rows, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out, nil
}

type txConn struct {
	tx pgx.Tx
}

func (t *txConn) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	return execute(ctx, t.tx, req)
}

func (t *txConn) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txConn) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
