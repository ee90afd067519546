package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pg-sharding/readreplicas/pkg/config"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
	"github.com/pg-sharding/readreplicas/router/client"
	"github.com/pg-sharding/readreplicas/router/trace"
)

var (
	rcfgPath string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "readreplicas --config `path-to-config` <command>",
	Short: "readreplicas",
	Long:  "Route reads to Postgres replicas and writes to the primary",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		spqrlog.Zero.Fatal().Err(err).Msg("")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rcfgPath, "config", "c", "/etc/readreplicas/config.yaml", "path to config file")
	registerOverrideFlags(rootCmd)

	rootCmd.AddCommand(queryCmd, execCmd, checkCmd, versionCmd)
}

// loadConfig reads the config file, applies flag overrides and sets up
// logging.
func loadConfig(cmd *cobra.Command) (*config.Router, error) {
	if err := config.LoadRouterCfg(rcfgPath); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	rcfg := config.RouterConfig()
	if err := applyOverrides(cmd, rcfg); err != nil {
		return nil, err
	}
	if err := rcfg.Validate(); err != nil {
		return nil, err
	}

	if rcfg.LogFile != "" || rcfg.PrettyLogging {
		spqrlog.ReloadLogger(rcfg.LogFile, rcfg.LogLevel, rcfg.PrettyLogging)
	}
	if rcfg.LogLevel != "" {
		if err := spqrlog.UpdateZeroLogLevel(rcfg.LogLevel); err != nil {
			return nil, err
		}
	}
	spqrlog.Zero.Debug().Str("config", rcfg.String()).Msg("running config")
	return rcfg, nil
}

// withClient loads the config, connects a client and runs fn against it.
// The client is disconnected afterwards whatever fn returns.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, cl *client.Client) error) error {
	rcfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	closer, err := trace.InitJaegerTracer(rcfg.JaegerConfig)
	if err != nil {
		return errors.Wrap(err, "failed to init tracer")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			spqrlog.Zero.Error().Err(err).Msg("failed to close tracer")
		}
	}()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cl, err := newClient(rcfg)
	if err != nil {
		return errors.Wrap(err, "failed to build client")
	}
	if err := cl.Connect(ctx); err != nil {
		return errors.Wrap(err, "failed to connect")
	}
	defer func() {
		if err := cl.Disconnect(context.Background()); err != nil {
			spqrlog.Zero.Error().Err(err).Msg("failed to disconnect")
		}
	}()

	return fn(ctx, cl)
}

func main() {
	rootCmd.SetOut(os.Stdout)
	Execute()
}
