// Package metrics records refresh and mutation metrics with OpenTelemetry
// and optionally exports them over OTLP/gRPC.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/theirongolddev/sitebook/internal/model"
)

const (
	serviceName    = "sitebook"
	serviceVersion = "1.0.0"
)

// Recorder holds the sitebook instruments.
type Recorder struct {
	refreshes     metric.Int64Counter
	refreshTime   metric.Float64Histogram
	mutations     metric.Int64Counter
	budgetPercent metric.Float64Histogram
	shutdown      func(context.Context) error
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(serviceName)

	refreshes, err := meter.Int64Counter(
		"sitebook_refresh_total",
		metric.WithDescription("Dashboard snapshot refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh counter: %w", err)
	}

	refreshTime, err := meter.Float64Histogram(
		"sitebook_refresh_duration_seconds",
		metric.WithDescription("Time to fetch a dashboard snapshot"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh histogram: %w", err)
	}

	mutations, err := meter.Int64Counter(
		"sitebook_mutations_total",
		metric.WithDescription("Optimistic mutations by kind and outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mutation counter: %w", err)
	}

	budgetPercent, err := meter.Float64Histogram(
		"sitebook_budget_used_percent",
		metric.WithDescription("Budget used, sampled on every poll"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating budget histogram: %w", err)
	}

	return &Recorder{
		refreshes:     refreshes,
		refreshTime:   refreshTime,
		mutations:     mutations,
		budgetPercent: budgetPercent,
		shutdown:      func(context.Context) error { return nil },
	}, nil
}

// Nop returns a recorder that discards everything.
func Nop() *Recorder {
	r, _ := New(noop.NewMeterProvider())
	return r
}

// NewOTLP creates a recorder exporting to an OTLP collector at endpoint.
func NewOTLP(ctx context.Context, endpoint string, insecureConn bool) (*Recorder, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(endpoint),
	}
	if insecureConn {
		opts = append(opts,
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlpmetricgrpc.WithInsecure(),
		)
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	r, err := New(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	r.shutdown = provider.Shutdown
	return r, nil
}

// RecordRefresh counts one snapshot fetch.
func (r *Recorder) RecordRefresh(ctx context.Context, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opt := metric.WithAttributes(attribute.String("outcome", outcome))
	r.refreshes.Add(ctx, 1, opt)
	r.refreshTime.Record(ctx, d.Seconds(), opt)
}

// RecordMutation counts one mutation outcome.
func (r *Recorder) RecordMutation(ctx context.Context, ev model.MutationEvent) error {
	r.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", ev.Kind),
		attribute.String("outcome", ev.Outcome),
	))
	return nil
}

// RecordBudget samples the budget utilization.
func (r *Recorder) RecordBudget(ctx context.Context, b model.BudgetStats) {
	r.budgetPercent.Record(ctx, b.BudgetPercent, metric.WithAttributes(
		attribute.Bool("over_budget", b.IsOverBudget),
	))
}

// Close flushes pending metrics and shuts the exporter down.
func (r *Recorder) Close(ctx context.Context) error {
	return r.shutdown(ctx)
}
