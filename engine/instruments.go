package engine

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hupe1980/agentcore/engine"

const (
	kindAgent = "agent"
	kindTool  = "tool"
)

type instruments struct {
	tracer      trace.Tracer
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	active      metric.Int64UpDownCounter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) *instruments {
	meter := mp.Meter(instrumentationName)

	invocations, _ := meter.Int64Counter("agentcore.invocations",
		metric.WithDescription("Number of agent runs and tool calls"),
	)
	duration, _ := meter.Float64Histogram("agentcore.invocation.duration",
		metric.WithDescription("Duration of agent runs and tool calls (ms)"),
		metric.WithUnit("ms"),
	)
	active, _ := meter.Int64UpDownCounter("agentcore.invocations.active",
		metric.WithDescription("Invocations currently in flight"),
	)

	return &instruments{
		tracer:      tp.Tracer(instrumentationName),
		invocations: invocations,
		duration:    duration,
		active:      active,
	}
}

// start opens a span for one invocation and counts it as active. The
// returned func closes the span, records the outcome and reports the elapsed
// time.
func (i *instruments) start(ctx context.Context, kind, name string, attrs ...attribute.KeyValue) (context.Context, func(err error) time.Duration) {
	unitAttrs := []attribute.KeyValue{
		attribute.String("agentcore.kind", kind),
		attribute.String("agentcore.unit", name),
	}

	ctx, span := i.tracer.Start(ctx, kind+" "+name, trace.WithAttributes(append(unitAttrs, attrs...)...))
	i.active.Add(ctx, 1, metric.WithAttributes(unitAttrs...))
	start := time.Now()

	return ctx, func(err error) time.Duration {
		elapsed := time.Since(start)

		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		done := append(slices.Clone(unitAttrs), attribute.String("agentcore.outcome", outcome))
		i.invocations.Add(ctx, 1, metric.WithAttributes(done...))
		i.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(done...))
		i.active.Add(ctx, -1, metric.WithAttributes(unitAttrs...))

		span.End()

		return elapsed
	}
}
