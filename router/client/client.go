package client

import (
	"context"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/operation"
	"github.com/pg-sharding/readreplicas/pkg/pool"
	"github.com/pg-sharding/readreplicas/pkg/reshape"
	"github.com/pg-sharding/readreplicas/router/qrouter"
)

// Querier executes operations. Views returned by the override accessors
// are plain Queriers, so they cannot be overridden again.
type Querier interface {
	Execute(ctx context.Context, req conn.Request) (conn.Result, error)
}

// Accessor is a routable client: Client outside a transaction, *Tx inside.
type Accessor interface {
	Querier

	Primary() Querier
	Replica() (Querier, error)
}

// Options configure a Client. URLs and Replicas are mutually exclusive.
type Options struct {
	// Datasource names the database the replicas serve. Required with URLs.
	Datasource string

	Primary conn.Connection

	URLs          []string
	Replicas      []conn.Connection
	Factory       conn.Factory
	ClientOptions conn.ClientOptions

	ConfigureReplica pool.ConfigureFn

	DefaultReadTarget qrouter.Target
	ReadOperations    []operation.Operation
	InspectRawSQL     bool

	Parallelism int
}

// Client routes reads to replicas and everything else to the primary.
type Client struct {
	primary conn.Connection
	router  *qrouter.Router
}

var _ Accessor = &Client{}

func New(opts Options) (*Client, error) {
	if opts.Primary == nil {
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "primary connection must be specified")
	}
	if opts.URLs != nil && opts.Datasource == "" {
		return nil, spqrerror.New(spqrerror.RR_CONFIGURATION, "read replicas options must specify a datasource")
	}

	clientOpts := opts.ClientOptions
	if clientOpts.Datasource == "" {
		clientOpts.Datasource = opts.Datasource
	}

	replicas, err := pool.NewReplicaPool(pool.PoolOpts{
		URLs:          opts.URLs,
		Replicas:      opts.Replicas,
		Factory:       opts.Factory,
		ClientOptions: clientOpts,
		Configure:     opts.ConfigureReplica,
		Parallelism:   opts.Parallelism,
	})
	if err != nil {
		return nil, err
	}

	var classifier *operation.Classifier
	if len(opts.ReadOperations) > 0 {
		classifier = operation.NewClassifier(opts.ReadOperations...)
	}

	router, err := qrouter.NewRouter(opts.Primary, replicas, qrouter.RouterOpts{
		DefaultReadTarget: opts.DefaultReadTarget,
		Classifier:        classifier,
		InspectRawSQL:     opts.InspectRawSQL,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		primary: opts.Primary,
		router:  router,
	}, nil
}

func (c *Client) Router() *qrouter.Router {
	return c.router
}

// Execute routes req.
func (c *Client) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	return c.router.Dispatch(ctx, qrouter.Call{Request: req}, c.primaryQuery)
}

func (c *Client) primaryQuery(ctx context.Context, req conn.Request) (conn.Result, error) {
	res, err := c.primary.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return reshape.Normalize(req, res)
}

// Primary returns a view executing everything on the primary.
func (c *Client) Primary() Querier {
	return queryFunc(c.primaryQuery)
}

// Replica returns a view bound to one freshly picked replica. Every
// operation issued through the view runs on that replica, writes included.
func (c *Client) Replica() (Querier, error) {
	replica := c.router.PickReplica()
	return queryFunc(func(ctx context.Context, req conn.Request) (conn.Result, error) {
		return c.router.ExecuteOnReplica(ctx, replica, req)
	}), nil
}

// Connect connects the primary and all replicas.
func (c *Client) Connect(ctx context.Context) error {
	return c.router.Connect(ctx)
}

// Disconnect disconnects the primary and all replicas.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.router.Disconnect(ctx)
}

// FindMany is shorthand for a findMany on model.
func (c *Client) FindMany(ctx context.Context, model string, args any) (conn.Result, error) {
	return c.Execute(ctx, conn.Request{Op: operation.FindMany, Model: model, Args: args})
}

// QueryRaw runs a raw SQL query.
func (c *Client) QueryRaw(ctx context.Context, sql string, values ...any) (conn.Result, error) {
	return c.Execute(ctx, conn.Request{Op: operation.QueryRaw, Args: conn.NewRawArgs(sql, values...)})
}

// ExecuteRaw runs a raw SQL statement.
func (c *Client) ExecuteRaw(ctx context.Context, sql string, values ...any) (conn.Result, error) {
	return c.Execute(ctx, conn.Request{Op: operation.ExecuteRaw, Args: conn.NewRawArgs(sql, values...)})
}

type queryFunc func(ctx context.Context, req conn.Request) (conn.Result, error)

func (f queryFunc) Execute(ctx context.Context, req conn.Request) (conn.Result, error) {
	return f(ctx, req)
}
