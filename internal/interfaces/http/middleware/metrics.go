package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pricedragon/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests no route matched
const unmatchedRoute = "unknown"

type requestMetrics struct {
	total    *telemetry.Counter
	latency  *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func (m *requestMetrics) observe(ctx context.Context, method, route string, status int, took time.Duration) {
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
	}
	m.latency.RecordDuration(ctx, took, attrs...)
	m.total.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(status))...)
}

// HTTPMetrics counts requests and records their latency by route template,
// plus a gauge of requests in flight. A nil meter records nothing.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }, nil
	}

	m := &requestMetrics{}
	var err error
	if m.total, err = telemetry.NewCounter(meter, "http_server_request_total", "HTTP requests served", "{request}"); err != nil {
		return nil, err
	}
	if m.latency, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		started := time.Now()
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.observe(ctx, c.Request.Method, route, c.Writer.Status(), time.Since(started))
	}, nil
}
