// Package telemetry exposes OpenTelemetry metrics through a Prometheus
// scrape endpoint and records per-operation counters and timers.
package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/pm/patient-service"

// Config identifies the service in exported metrics.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "patient-service"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Provider owns the meter provider and a private Prometheus registry so that
// several providers can coexist in one process (tests).
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
	meter    metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	timers   map[string]metric.Float64Histogram

	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

func NewProvider(cfg Config) (*Provider, error) {
	cfg.applyDefaults()

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment.name", cfg.Environment),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	p := &Provider{
		mp:       mp,
		registry: registry,
		meter:    mp.Meter(meterName),
		counters: make(map[string]metric.Int64Counter),
		timers:   make(map[string]metric.Float64Histogram),
	}

	p.httpRequests, err = p.meter.Int64Counter("http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http request counter: %w", err)
	}
	p.httpDuration, err = p.meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http duration histogram: %w", err)
	}
	return p, nil
}

// IncCounter adds one to the named counter, creating it on first use.
func (p *Provider) IncCounter(ctx context.Context, name string) {
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		var err error
		c, err = p.meter.Int64Counter(name)
		if err != nil {
			p.mu.Unlock()
			return
		}
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.Add(ctx, 1)
}

// ObserveDuration records d in seconds on the named timer.
func (p *Provider) ObserveDuration(ctx context.Context, name string, d time.Duration) {
	p.mu.Lock()
	h, ok := p.timers[name]
	if !ok {
		var err error
		h, err = p.meter.Float64Histogram(name, metric.WithUnit("s"))
		if err != nil {
			p.mu.Unlock()
			return
		}
		p.timers[name] = h
	}
	p.mu.Unlock()
	h.Record(ctx, d.Seconds())
}

// MetricsMiddleware counts and times every request by method, route and status.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			attrs := metric.WithAttributes(
				attribute.String("http.method", c.Request().Method),
				attribute.String("http.route", c.Path()),
				attribute.String("http.status_code", strconv.Itoa(c.Response().Status)),
			)
			ctx := c.Request().Context()
			p.httpRequests.Add(ctx, 1, attrs)
			p.httpDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			return nil
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}
