package pool

import (
	"context"
	"math/rand/v2"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
)

// ConfigureFn lets callers wrap a freshly built replica connection (for
// instance with their own instrumentation) before the pool owns it.
type ConfigureFn func(c conn.Connection) conn.Connection

// PoolOpts describes how a ReplicaPool is built. URLs and Replicas are
// mutually exclusive; a nil slice means "not supplied".
type PoolOpts struct {
	URLs          []string
	Replicas      []conn.Connection
	Factory       conn.Factory
	ClientOptions conn.ClientOptions
	Configure     ConfigureFn

	// Parallelism bounds concurrent connect/disconnect calls; <= 0 means
	// one goroutine per replica.
	Parallelism int
}

// ReplicaPool owns the read-only connections. Its member list never
// changes after construction.
type ReplicaPool struct {
	replicas    []conn.Connection
	parallelism int
}

// NewReplicaPool validates opts and builds the pool. It performs no I/O.
func NewReplicaPool(opts PoolOpts) (*ReplicaPool, error) {
	switch {
	case opts.URLs != nil && opts.Replicas != nil:
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "only one of 'url' or 'replicas' may be specified")
	case opts.URLs == nil && opts.Replicas == nil:
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "either 'url' or 'replicas' must be specified")
	case opts.URLs != nil && len(opts.URLs) == 0:
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "at least one replica URL must be specified")
	case opts.Replicas != nil && len(opts.Replicas) == 0:
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "at least one replica must be specified")
	case len(opts.URLs) > 0 && opts.Factory == nil:
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "replica URLs require a connection factory")
	}

	replicas := make([]conn.Connection, 0, len(opts.URLs)+len(opts.Replicas))
	for i, url := range opts.URLs {
		c, err := opts.Factory(url, opts.ClientOptions)
		if err != nil {
			return nil, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "replica %d: %w", i, err)
		}
		if opts.Configure != nil {
			c = opts.Configure(c)
		}
		if c == nil {
			return nil, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "replica %d: no connection was built", i)
		}
		replicas = append(replicas, c)
	}
	for i, c := range opts.Replicas {
		if c == nil {
			return nil, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "replica %d is nil", i)
		}
		replicas = append(replicas, c)
	}

	spqrlog.Zero.Info().
		Int("replicas", len(replicas)).
		Str("datasource", opts.ClientOptions.Datasource).
		Msg("replica pool created")

	return &ReplicaPool{
		replicas:    replicas,
		parallelism: opts.Parallelism,
	}, nil
}

// ConnectAll connects every replica concurrently and waits for all of
// them. Every failure is reported.
func (p *ReplicaPool) ConnectAll(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "connect replicas")
	defer span.Finish()

	return p.forEach(ctx, "connect", func(ctx context.Context, c conn.Connection) error {
		return c.Connect(ctx)
	})
}

// DisconnectAll disconnects every replica concurrently and waits for all
// of them. Every failure is reported.
func (p *ReplicaPool) DisconnectAll(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "disconnect replicas")
	defer span.Finish()

	return p.forEach(ctx, "disconnect", func(ctx context.Context, c conn.Connection) error {
		return c.Disconnect(ctx)
	})
}

func (p *ReplicaPool) forEach(ctx context.Context, action string, cb func(ctx context.Context, c conn.Connection) error) error {
	errs := make([]error, len(p.replicas))

	var g errgroup.Group
	if p.parallelism > 0 {
		g.SetLimit(p.parallelism)
	}
	for i, c := range p.replicas {
		g.Go(func() error {
			if err := cb(ctx, c); err != nil {
				spqrlog.Zero.Error().Err(err).Int("replica", i).Str("action", action).Msg("replica failed")
				errs[i] = spqrerror.Newf(spqrerror.RR_EXECUTION, "replica %d %s: %w", i, action, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return multierr.Combine(errs...)
}

// PickReplica returns a uniformly random replica. Each call is independent.
func (p *ReplicaPool) PickReplica() conn.Connection {
	return p.replicas[rand.IntN(len(p.replicas))]
}

// Size returns the number of replicas.
func (p *ReplicaPool) Size() int {
	return len(p.replicas)
}

// Replicas returns a copy of the member list in construction order.
func (p *ReplicaPool) Replicas() []conn.Connection {
	out := make([]conn.Connection, len(p.replicas))
	copy(out, p.replicas)
	return out
}
