package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pg-sharding/readreplicas/pkg"
	"github.com/pg-sharding/readreplicas/pkg/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/operation"
	"github.com/pg-sharding/readreplicas/pkg/reshape"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
	"github.com/pg-sharding/readreplicas/router/client"
)

var (
	sqlText      string
	forcePrimary bool
	forceReplica bool
)

var queryCmd = &cobra.Command{
	Use:   "query --sql `statement` [args...]",
	Short: "run a row-returning raw query and print rows as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if forcePrimary && forceReplica {
			return spqrerror.New(spqrerror.RR_INVALID_OPERATION, "--primary and --replica are mutually exclusive")
		}
		return withClient(cmd, func(ctx context.Context, cl *client.Client) error {
			q, err := pickQuerier(cl)
			if err != nil {
				return err
			}
			res, err := q.Execute(ctx, rawRequest(operation.QueryRaw, args))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var execCmd = &cobra.Command{
	Use:   "exec --sql `statement` [args...]",
	Short: "run a raw statement on the primary and print affected rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cl *client.Client) error {
			res, err := cl.Execute(ctx, rawRequest(operation.ExecuteRaw, args))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "connect to the primary and every replica, then disconnect",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cl *client.Client) error {
			spqrlog.Zero.Info().
				Int("replicas", cl.Router().Pool().Size()).
				Msg("primary and replicas are reachable")
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "readreplicas %s\n", pkg.VersionRevision)
	},
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, execCmd} {
		c.Flags().StringVar(&sqlText, "sql", "", "SQL statement with $n placeholders")
		_ = c.MarkFlagRequired("sql")
	}
	queryCmd.Flags().BoolVar(&forcePrimary, "primary", false, "run on the primary regardless of routing")
	queryCmd.Flags().BoolVar(&forceReplica, "replica", false, "run on a random replica regardless of routing")
}

func pickQuerier(cl *client.Client) (client.Querier, error) {
	switch {
	case forcePrimary:
		return cl.Primary(), nil
	case forceReplica:
		return cl.Replica()
	default:
		return cl, nil
	}
}

func rawRequest(op operation.Operation, args []string) conn.Request {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	return conn.Request{Op: op, Args: conn.NewRawArgs(sqlText, values...)}
}

// printResult writes rows with their raw-query envelopes removed.
func printResult(w io.Writer, res conn.Result) error {
	var out any = res
	if rows, ok := res.(conn.Rows); ok {
		out = reshape.Unwrap(rows)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
