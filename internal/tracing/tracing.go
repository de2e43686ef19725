// Package tracing wraps OpenTracing span creation for the three
// suspension-point categories this service has: upstream HTTP calls, store
// calls, and the sandboxed-execution boundary.
package tracing

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegermetrics "github.com/uber/jaeger-lib/metrics"
)

// Config points the tracer at a Jaeger agent. An empty Host disables
// tracing entirely (Init returns opentracing.NoopTracer).
type Config struct {
	ServiceName string
	Host        string
	Port        int
}

// Init builds and installs the global tracer. The returned closer must be
// called at shutdown. When cfg.Host is empty, tracing is a no-op and the
// closer does nothing.
func Init(cfg Config) (opentracing.Tracer, func(), error) {
	if cfg.Host == "" {
		tracer := opentracing.NoopTracer{}
		opentracing.SetGlobalTracer(tracer)

		return tracer, func() {}, nil
	}

	jcfg := &jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		},
	}

	tracer, closer, err := jcfg.NewTracer(jaegercfg.Metrics(jaegermetrics.NullFactory))
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)

	return tracer, func() { closer.Close() }, nil
}

// StartSpan opens a span named op as a child of any span already in ctx,
// returning the finish function to defer at the call site.
func StartSpan(ctx context.Context, op string) (opentracing.Span, context.Context, func()) {
	span, spanCtx := opentracing.StartSpanFromContext(ctx, op)

	return span, spanCtx, span.Finish
}
