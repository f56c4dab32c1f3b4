// Package metrics instruments a wavez sink with Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zoobzio/wavez"
)

// Sink counts records flowing to another sink and observes span durations.
type Sink struct {
	next wavez.Sink

	RecordsTotal   *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
	SpansTotal     *prometheus.CounterVec
	SpanDurationMS *prometheus.HistogramVec
}

// New wraps next, registering its metrics with reg.
// A nil reg registers with the default registerer.
func New(next wavez.Sink, reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Sink{
		next: next,
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavez_records_total",
				Help: "Total number of records submitted",
			},
			[]string{"collection"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavez_record_failures_total",
				Help: "Total number of records the downstream sink rejected",
			},
			[]string{"collection"},
		),
		SpansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavez_spans_total",
				Help: "Total number of span records by function and status",
			},
			[]string{"function", "status"},
		),
		SpanDurationMS: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wavez_span_duration_milliseconds",
				Help:    "Instrumented call duration in milliseconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"function"},
		),
	}
}

// Submit records metrics then forwards to the wrapped sink.
func (s *Sink) Submit(ctx context.Context, collection string, record wavez.Record) error {
	s.RecordsTotal.WithLabelValues(collection).Inc()

	if status, ok := record[wavez.StatusKey].(string); ok {
		function, _ := record[wavez.FunctionNameKey].(string)
		s.SpansTotal.WithLabelValues(function, status).Inc()
		if ms, ok := record[wavez.DurationKey].(float64); ok {
			s.SpanDurationMS.WithLabelValues(function).Observe(ms)
		}
	}

	if s.next == nil {
		return nil
	}
	if err := s.next.Submit(ctx, collection, record); err != nil {
		s.FailuresTotal.WithLabelValues(collection).Inc()
		return err
	}
	return nil
}
