// Package trace sets up the global opentracing tracer backed by jaeger.
package trace

import (
	"io"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegerlog "github.com/uber/jaeger-client-go/log"
	"github.com/uber/jaeger-lib/metrics"

	"github.com/pg-sharding/readreplicas/pkg/config"
	"github.com/pg-sharding/readreplicas/pkg/spqrlog"
)

const serviceName = "readreplicas"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Configuration translates the jaeger section of the config into a
// client configuration.
func Configuration(cfg config.JaegerCfg) jaegercfg.Configuration {
	return jaegercfg.Configuration{
		ServiceName: serviceName,
		Disabled:    !cfg.Enabled,
		Sampler: &jaegercfg.SamplerConfig{
			Type:              "const",
			Param:             1,
			SamplingServerURL: cfg.JaegerUrl,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
		Gen128Bit: true,
		Tags: []opentracing.Tag{
			{Key: "span.kind", Value: "client"},
		},
	}
}

// InitJaegerTracer installs the global tracer. When tracing is disabled the
// default no-op tracer stays in place and the returned closer does nothing.
func InitJaegerTracer(cfg config.JaegerCfg) (io.Closer, error) {
	if !cfg.Enabled {
		return nopCloser{}, nil
	}

	jcfg := Configuration(cfg)
	closer, err := jcfg.InitGlobalTracer(
		serviceName,
		jaegercfg.Logger(jaegerlog.StdLogger),
		jaegercfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, err
	}
	spqrlog.Zero.Info().Str("url", cfg.JaegerUrl).Msg("jaeger tracer initialized")
	return closer, nil
}
