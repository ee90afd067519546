package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pg-sharding/readreplicas/pkg/config"
	"github.com/pg-sharding/readreplicas/router/qrouter"
)

var (
	prettyLogging     bool
	driver            string
	defaultReadTarget string
	inspectRawSQL     bool
	parallelism       int
	replicaURLs       []string
)

type overrideRule struct {
	name     string
	changed  func() bool
	validate func() error
	apply    func()
}

func boolOR(dst *bool, add bool) { *dst = *dst || add }

func buildOverrideRules(cmd *cobra.Command, cfg *config.Router) []overrideRule {
	changed := func(name string) func() bool {
		return func() bool { return cmd.Flags().Changed(name) }
	}
	return []overrideRule{
		{
			name:    "log-level",
			changed: changed("log-level"),
			apply:   func() { cfg.LogLevel = logLevel },
		},
		{
			name:    "pretty-log",
			changed: changed("pretty-log"),
			apply:   func() { cfg.PrettyLogging = prettyLogging },
		},
		{
			name:    "driver",
			changed: changed("driver"),
			validate: func() error {
				switch driver {
				case config.DriverPgx, config.DriverPostgres:
					return nil
				}
				return fmt.Errorf("unknown driver %q", driver)
			},
			apply: func() { cfg.Driver = driver },
		},
		{
			name:    "default-read-target",
			changed: changed("default-read-target"),
			validate: func() error {
				_, err := qrouter.ParseTarget(defaultReadTarget)
				return err
			},
			apply: func() { cfg.DefaultReadTarget = defaultReadTarget },
		},
		{
			name:    "inspect-raw-sql",
			changed: changed("inspect-raw-sql"),
			apply:   func() { boolOR(&cfg.InspectRawSQL, inspectRawSQL) },
		},
		{
			name:    "parallelism",
			changed: changed("parallelism"),
			validate: func() error {
				if parallelism < 0 {
					return fmt.Errorf("must not be negative")
				}
				return nil
			},
			apply: func() { cfg.Parallelism = parallelism },
		},
		{
			name:    "replica-url",
			changed: changed("replica-url"),
			validate: func() error {
				if len(replicaURLs) == 0 {
					return fmt.Errorf("at least one replica URL must be specified")
				}
				return nil
			},
			apply: func() { cfg.Replicas.URL = config.URLList(append([]string(nil), replicaURLs...)) },
		},
	}
}

// applyOverrides validates every changed flag before applying any of them,
// so a bad flag leaves cfg untouched.
func applyOverrides(cmd *cobra.Command, cfg *config.Router) error {
	rules := buildOverrideRules(cmd, cfg)
	for _, r := range rules {
		if r.changed() && r.validate != nil {
			if err := r.validate(); err != nil {
				return fmt.Errorf("%s: %w", r.name, err)
			}
		}
	}
	for _, r := range rules {
		if r.changed() {
			r.apply()
		}
	}
	return nil
}

func registerOverrideFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&logLevel, "log-level", "l", "", "log level, overrides config")
	f.BoolVar(&prettyLogging, "pretty-log", false, "human readable console logging")
	f.StringVar(&driver, "driver", "", "connection driver: pgx or postgres")
	f.StringVar(&defaultReadTarget, "default-read-target", "", "where reads go: replica or primary")
	f.BoolVar(&inspectRawSQL, "inspect-raw-sql", false, "send raw queries that are not plain SELECTs to the primary")
	f.IntVar(&parallelism, "parallelism", 0, "max concurrent replica connects, 0 means unlimited")
	f.StringSliceVar(&replicaURLs, "replica-url", nil, "replica URL, may be repeated; replaces replicas.url")
}
