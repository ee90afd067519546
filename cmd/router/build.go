package main

import (
	"github.com/pg-sharding/readreplicas/pkg/config"
	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/conn/pgxconn"
	"github.com/pg-sharding/readreplicas/pkg/conn/sqlconn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/router/client"
	"github.com/pg-sharding/readreplicas/router/qrouter"
)

// factoryFor picks the connection implementation for a driver name.
func factoryFor(driver string) (conn.Factory, error) {
	switch driver {
	case "", config.DriverPgx:
		return pgxconn.Factory, nil
	case config.DriverPostgres:
		return sqlconn.Factory, nil
	default:
		return nil, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "unknown driver %q", driver)
	}
}

// clientOptions translates the config into client options. The primary is
// built with the same factory and client settings as the replicas.
func clientOptions(rcfg *config.Router) (client.Options, error) {
	factory, err := factoryFor(rcfg.Driver)
	if err != nil {
		return client.Options{}, err
	}
	copts, err := rcfg.ClientOptions()
	if err != nil {
		return client.Options{}, err
	}
	target, err := qrouter.ParseTarget(rcfg.DefaultReadTarget)
	if err != nil {
		return client.Options{}, err
	}
	reads, err := rcfg.ReadOperationList()
	if err != nil {
		return client.Options{}, err
	}

	primary, err := factory(rcfg.PrimaryURL, copts)
	if err != nil {
		return client.Options{}, err
	}

	return client.Options{
		Datasource:        rcfg.Datasource,
		Primary:           primary,
		URLs:              rcfg.Replicas.URL,
		Factory:           factory,
		ClientOptions:     copts,
		DefaultReadTarget: target,
		ReadOperations:    reads,
		InspectRawSQL:     rcfg.InspectRawSQL,
		Parallelism:       rcfg.Parallelism,
	}, nil
}

func newClient(rcfg *config.Router) (*client.Client, error) {
	opts, err := clientOptions(rcfg)
	if err != nil {
		return nil, err
	}
	return client.New(opts)
}
