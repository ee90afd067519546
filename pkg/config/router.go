package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/operation"
)

const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"

	ReadTargetPrimary = "primary"
	ReadTargetReplica = "replica"
)

type Router struct {
	LogLevel      string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFile       string `json:"log_file" toml:"log_file" yaml:"log_file"`
	PrettyLogging bool   `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`

	Datasource string `json:"datasource" toml:"datasource" yaml:"datasource"`
	PrimaryURL string `json:"primary_url" toml:"primary_url" yaml:"primary_url"`
	Driver     string `json:"driver" toml:"driver" yaml:"driver"`

	Replicas      ReplicasCfg      `json:"replicas" toml:"replicas" yaml:"replicas"`
	ReplicaClient ReplicaClientCfg `json:"replica_client" toml:"replica_client" yaml:"replica_client"`

	DefaultReadTarget string   `json:"default_read_target" toml:"default_read_target" yaml:"default_read_target"`
	ReadOperations    []string `json:"read_operations" toml:"read_operations" yaml:"read_operations"`
	InspectRawSQL     bool     `json:"inspect_raw_sql" toml:"inspect_raw_sql" yaml:"inspect_raw_sql"`
	Parallelism       int      `json:"parallelism" toml:"parallelism" yaml:"parallelism"`

	JaegerConfig JaegerCfg `json:"jaeger" toml:"jaeger" yaml:"jaeger"`
}

type ReplicasCfg struct {
	URL URLList `json:"url" toml:"url" yaml:"url"`
}

type ReplicaClientCfg struct {
	ApplicationName string `json:"application_name" toml:"application_name" yaml:"application_name"`
	MaxConns        int32  `json:"max_conns" toml:"max_conns" yaml:"max_conns"`
	ConnectTimeout  string `json:"connect_timeout" toml:"connect_timeout" yaml:"connect_timeout"`
	ConnectRetries  uint64 `json:"connect_retries" toml:"connect_retries" yaml:"connect_retries"`
}

type JaegerCfg struct {
	Enabled   bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	JaegerUrl string `json:"jaeger_url" toml:"jaeger_url" yaml:"jaeger_url"`
}

var cfgRouter Router

// LoadRouterCfg reads and validates the router configuration. The format
// is picked by file suffix.
func LoadRouterCfg(cfgPath string) error {
	file, err := os.Open(cfgPath)
	if err != nil {
		return err
	}
	defer file.Close()

	var rcfg Router
	if err := initConfig(file, &rcfg); err != nil {
		return err
	}
	if err := rcfg.Validate(); err != nil {
		return err
	}

	cfgRouter = rcfg
	return nil
}

func RouterConfig() *Router {
	return &cfgRouter
}

// Validate checks the options that the router cannot start without.
func (r *Router) Validate() error {
	if r.Datasource == "" {
		return spqrerror.New(spqrerror.RR_CONFIGURATION, "read replicas options must specify a datasource")
	}
	if r.PrimaryURL == "" {
		return spqrerror.New(spqrerror.RR_CONFIGURATION, "primary_url must be specified")
	}
	switch r.Driver {
	case "", DriverPgx, DriverPostgres:
	default:
		return spqrerror.Newf(spqrerror.RR_CONFIGURATION, "unknown driver %q, use %q or %q", r.Driver, DriverPgx, DriverPostgres)
	}
	switch {
	case r.Replicas.URL == nil:
		return spqrerror.New(spqrerror.RR_CONFIGURATION, "either 'url' or 'replicas' must be specified")
	case len(r.Replicas.URL) == 0:
		return spqrerror.New(spqrerror.RR_CONFIGURATION, "at least one replica URL must be specified")
	}
	switch strings.ToLower(r.DefaultReadTarget) {
	case "", ReadTargetPrimary, ReadTargetReplica:
	default:
		return spqrerror.Newf(spqrerror.RR_CONFIGURATION, "unknown default_read_target %q", r.DefaultReadTarget)
	}
	if _, err := r.ReadOperationList(); err != nil {
		return err
	}
	if _, err := r.ReplicaClient.Timeout(); err != nil {
		return err
	}
	return nil
}

// ReadOperationList resolves read_operations; nil means the default set.
func (r *Router) ReadOperationList() ([]operation.Operation, error) {
	if len(r.ReadOperations) == 0 {
		return nil, nil
	}
	return operation.ParseList(r.ReadOperations)
}

// ClientOptions converts the replica client section.
func (r *Router) ClientOptions() (conn.ClientOptions, error) {
	timeout, err := r.ReplicaClient.Timeout()
	if err != nil {
		return conn.ClientOptions{}, err
	}
	return conn.ClientOptions{
		Datasource:      r.Datasource,
		ApplicationName: r.ReplicaClient.ApplicationName,
		MaxConns:        r.ReplicaClient.MaxConns,
		ConnectTimeout:  timeout,
		ConnectRetries:  r.ReplicaClient.ConnectRetries,
	}, nil
}

func (c ReplicaClientCfg) Timeout() (time.Duration, error) {
	if c.ConnectTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 0, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "invalid connect_timeout: %w", err)
	}
	return d, nil
}

// String renders the configuration as indented JSON for logging.
func (r *Router) String() string {
	configBytes, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", *r)
	}
	return string(configBytes)
}

func initConfig(file *os.File, target any) error {
	if strings.HasSuffix(file.Name(), ".toml") {
		_, err := toml.NewDecoder(file).Decode(target)
		return err
	}
	if strings.HasSuffix(file.Name(), ".yaml") || strings.HasSuffix(file.Name(), ".yml") {
		return yaml.NewDecoder(file).Decode(target)
	}
	if strings.HasSuffix(file.Name(), ".json") {
		return json.NewDecoder(file).Decode(target)
	}
	return fmt.Errorf("unknown config format type: %s. Use .toml, .yaml or .json suffix in filename", file.Name())
}
