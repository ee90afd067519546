package qrouter

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/operation"
	"github.com/pg-sharding/readreplicas/pkg/pool"
	"github.com/pg-sharding/readreplicas/pkg/reshape"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
)

// QueryFunc executes a request on the primary path: the primary itself or
// the connection of the current transaction.
type QueryFunc func(ctx context.Context, req conn.Request) (conn.Result, error)

// Call is one intercepted operation together with its binding.
type Call struct {
	conn.Request

	// InTx is set when the call belongs to an open transaction. Such calls
	// always stay on the primary path.
	InTx bool
}

type QueryRouter interface {
	Decide(call Call) Target
	Dispatch(ctx context.Context, call Call, query QueryFunc) (conn.Result, error)

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// RouterOpts tunes routing.
type RouterOpts struct {
	// DefaultReadTarget set to TargetPrimary keeps reads on the primary.
	DefaultReadTarget Target
	// Classifier decides which operations are reads; nil means the default
	// read set.
	Classifier *operation.Classifier
	// InspectRawSQL reclassifies raw queries whose SQL is not a single
	// read-only statement as writes.
	InspectRawSQL bool
}

type Router struct {
	primary conn.Connection
	pool    *pool.ReplicaPool

	classifier        *operation.Classifier
	defaultReadTarget Target
	inspectRawSQL     bool
}

var _ QueryRouter = &Router{}

func NewRouter(primary conn.Connection, replicas *pool.ReplicaPool, opts RouterOpts) (*Router, error) {
	if primary == nil {
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "primary connection must be specified")
	}
	if replicas == nil {
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "replica pool must be specified")
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = operation.NewClassifier()
	}
	return &Router{
		primary:           primary,
		pool:              replicas,
		classifier:        classifier,
		defaultReadTarget: opts.DefaultReadTarget,
		inspectRawSQL:     opts.InspectRawSQL,
	}, nil
}

func (r *Router) Primary() conn.Connection {
	return r.primary
}

func (r *Router) Pool() *pool.ReplicaPool {
	return r.pool
}

// Decide computes the routing decision for call without executing it.
func (r *Router) Decide(call Call) Target {
	if call.InTx {
		return TargetPrimary
	}
	if r.defaultReadTarget == TargetPrimary {
		return TargetPrimary
	}
	if !r.classifier.IsRead(call.Op) {
		return TargetPrimary
	}
	if r.inspectRawSQL && call.Op.IsRawQuery() && !rawStatementIsReadOnly(call.Args) {
		return TargetPrimary
	}
	return TargetReplica
}

// Dispatch routes call. Primary-bound calls go through query; reads are
// executed directly on a randomly picked replica and query is not invoked.
// Execution errors are returned as is.
func (r *Router) Dispatch(ctx context.Context, call Call, query QueryFunc) (conn.Result, error) {
	target := r.Decide(call)

	span, ctx := opentracing.StartSpanFromContext(ctx, "route")
	span.SetTag("operation", call.Op.String())
	span.SetTag("target", target.String())
	span.SetTag("tx", call.InTx)
	defer span.Finish()

	spqrlog.Zero.Debug().
		Str("operation", call.Op.String()).
		Str("model", call.Model).
		Bool("tx", call.InTx).
		Str("target", target.String()).
		Msg("routing operation")

	if target == TargetPrimary {
		return query(ctx, call.Request)
	}
	return r.ExecuteOnReplica(ctx, r.pool.PickReplica(), call.Request)
}

// ExecuteOnReplica runs req on replica and reshapes the result to what the
// caller of req expects.
func (r *Router) ExecuteOnReplica(ctx context.Context, replica conn.Connection, req conn.Request) (conn.Result, error) {
	res, err := replica.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return reshape.Normalize(req, res)
}

// PickReplica exposes the pool's selection to override accessors.
func (r *Router) PickReplica() conn.Connection {
	return r.pool.PickReplica()
}

// Connect connects the primary and every replica concurrently.
func (r *Router) Connect(ctx context.Context) error {
	return r.both(ctx, "connect", r.primary.Connect, r.pool.ConnectAll)
}

// Disconnect disconnects the primary and every replica concurrently.
func (r *Router) Disconnect(ctx context.Context) error {
	return r.both(ctx, "disconnect", r.primary.Disconnect, r.pool.DisconnectAll)
}

func (r *Router) both(ctx context.Context, action string, primary, replicas func(context.Context) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, action)
	defer span.Finish()

	var primaryErr, replicasErr error
	var g errgroup.Group
	g.Go(func() error {
		primaryErr = primary(ctx)
		return nil
	})
	g.Go(func() error {
		replicasErr = replicas(ctx)
		return nil
	})
	_ = g.Wait()

	if primaryErr != nil {
		spqrlog.Zero.Error().Err(primaryErr).Str("action", action).Msg("primary failed")
		primaryErr = spqrerror.Newf(spqrerror.RR_EXECUTION, "primary %s: %w", action, primaryErr)
	}
	err := multierr.Append(primaryErr, replicasErr)
	if err == nil {
		spqrlog.Zero.Info().Str("action", action).Int("replicas", r.pool.Size()).Msg("router connections done")
	}
	return err
}
