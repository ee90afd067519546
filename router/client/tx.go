package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/reshape"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
	"github.com/pg-sharding/readreplicas/pkg/txstatus"
	"github.com/pg-sharding/readreplicas/router/qrouter"
)

// Tx is the client bound to one open transaction on the primary.
type Tx struct {
	id     string
	router *qrouter.Router
	conn   conn.TxConn

	mu     sync.Mutex
	status txstatus.TXStatus
}

var _ Accessor = &Tx{}
var _ txstatus.TxStatusMgr = &Tx{}

func newTx(router *qrouter.Router, txc conn.TxConn) *Tx {
	return &Tx{
		id:     uuid.NewString(),
		router: router,
		conn:   txc,
		status: txstatus.TXACT,
	}
}

func (tx *Tx) ID() string {
	return tx.id
}

func (tx *Tx) SetTxStatus(status txstatus.TXStatus) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.status = status
}

func (tx *Tx) TxStatus() txstatus.TXStatus {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

// Execute runs req inside the transaction. It never leaves the primary.
func (tx *Tx) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	switch st := tx.TxStatus(); {
	case st.Active():
	case st == txstatus.TXERR:
		return nil, spqrerror.Newf(spqrerror.RR_INVALID_OPERATION, "transaction %s is aborted", tx.id)
	default:
		return nil, spqrerror.Newf(spqrerror.RR_INVALID_OPERATION, "transaction %s is already finished", tx.id)
	}

	res, err := tx.router.Dispatch(ctx, qrouter.Call{Request: req, InTx: true}, tx.query)
	if err != nil {
		tx.SetTxStatus(txstatus.TXERR)
		return nil, err
	}
	return res, nil
}

func (tx *Tx) query(ctx context.Context, req conn.Request) (conn.Result, error) {
	res, err := tx.conn.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return reshape.Normalize(req, res)
}

// Primary returns tx itself, which is already bound to the primary.
func (tx *Tx) Primary() Querier {
	return tx
}

// Replica always fails: a transaction cannot be moved to a replica.
func (tx *Tx) Replica() (Querier, error) {
	return nil, spqrerror.New(spqrerror.RR_INVALID_OPERATION, "cannot use a forced replica view inside a transaction")
}

// Transaction runs fn inside an interactive transaction on the primary.
// The transaction commits when fn returns nil and rolls back otherwise.
func (c *Client) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	beginner, ok := c.primary.(conn.TxBeginner)
	if !ok {
		return spqrerror.New(spqrerror.RR_INVALID_OPERATION, "primary connection does not support transactions")
	}

	txc, err := beginner.Begin(ctx)
	if err != nil {
		return err
	}
	tx := newTx(c.router, txc)
	spqrlog.Zero.Debug().Str("tx", tx.id).Msg("begin transaction")

	defer func() {
		if p := recover(); p != nil {
			tx.SetTxStatus(txstatus.TXERR)
			_ = txc.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.SetTxStatus(txstatus.TXERR)
		spqrlog.Zero.Debug().Str("tx", tx.id).Err(err).Msg("rollback transaction")
		return multierr.Append(err, txc.Rollback(ctx))
	}

	if tx.TxStatus() == txstatus.TXERR {
		spqrlog.Zero.Debug().Str("tx", tx.id).Msg("rollback aborted transaction")
		rbErr := txc.Rollback(ctx)
		tx.SetTxStatus(txstatus.TXIDLE)
		return multierr.Append(
			spqrerror.Newf(spqrerror.RR_INVALID_OPERATION, "transaction %s was aborted and rolled back", tx.id),
			rbErr,
		)
	}

	err = txc.Commit(ctx)
	tx.SetTxStatus(txstatus.TXIDLE)
	spqrlog.Zero.Debug().Str("tx", tx.id).Err(err).Msg("commit transaction")
	return err
}

// Batch runs reqs sequentially in one transaction on the primary and
// returns their results in order.
func (c *Client) Batch(ctx context.Context, reqs []conn.Request) ([]conn.Result, error) {
	results := make([]conn.Result, 0, len(reqs))
	err := c.Transaction(ctx, func(tx *Tx) error {
		for _, req := range reqs {
			res, err := tx.Execute(ctx, req)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
