package service

import (
	"time"

	"go.uber.org/zap"

	"geofyle/internal/geo"
	"geofyle/internal/metrics"
)

// Option configures the ambient dependencies shared by the services.
type Option func(*options)

type options struct {
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics
	precision int
}

func defaultOptions() options {
	return options{
		now:       time.Now,
		log:       zap.NewNop(),
		precision: geo.DefaultPrecision,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for infrastructure failures and summaries.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics sets the Prometheus collectors. Nil disables recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPrecision sets the spatial key precision used when creating records.
func WithPrecision(precision int) Option {
	return func(o *options) { o.precision = precision }
}
