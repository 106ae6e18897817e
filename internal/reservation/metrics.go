package reservation

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for reservation lifecycle events.
type Observer interface {
	RecordReserved()
	RecordFulfilled()
	RecordReap(duration time.Duration, err error)
	SetLive(n int)
}

// PrometheusObserver exports reservation metrics to Prometheus.
// Reaper delete failures are the only signal of leaked storage, so they get
// their own counter.
type PrometheusObserver struct {
	reserved         prometheus.Counter
	fulfilled        prometheus.Counter
	reaped           prometheus.Counter
	reapFailures     prometheus.Counter
	reapDuration     prometheus.Histogram
	liveReservations prometheus.Gauge
}

// NewPrometheusObserver registers the reservation metrics on reg.
// An empty namespace defaults to "upload_broker"; a nil reg uses the default registerer.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "upload_broker"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		reserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Presigned upload grants issued and reserved.",
		}),
		fulfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_fulfilled_total",
			Help:      "Reservations confirmed through the fulfillment callback.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_deletes_total",
			Help:      "Unfulfilled uploads deleted by the expiry reaper.",
		}),
		reapFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_delete_failures_total",
			Help:      "Reaper delete calls that failed; each one may leave an orphaned object.",
		}),
		reapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reaper_delete_duration_seconds",
			Help:      "Latency of reaper delete calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		liveReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservations_live",
			Help:      "Reservations currently awaiting fulfillment or expiry.",
		}),
	}

	collectors := []prometheus.Collector{
		o.reserved, o.fulfilled, o.reaped, o.reapFailures, o.reapDuration, o.liveReservations,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register reservation metric: %w", err)
		}
	}
	return o, nil
}

// RecordReserved counts a new reservation.
func (o *PrometheusObserver) RecordReserved() {
	if o == nil {
		return
	}
	o.reserved.Inc()
}

// RecordFulfilled counts a confirmed upload.
func (o *PrometheusObserver) RecordFulfilled() {
	if o == nil {
		return
	}
	o.fulfilled.Inc()
}

// RecordReap tracks reaper delete latency and failures.
func (o *PrometheusObserver) RecordReap(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.reapDuration.Observe(duration.Seconds())
	if err != nil {
		o.reapFailures.Inc()
		return
	}
	o.reaped.Inc()
}

// SetLive reports the current number of live reservations.
func (o *PrometheusObserver) SetLive(n int) {
	if o == nil {
		return
	}
	o.liveReservations.Set(float64(n))
}

type nopObserver struct{}

func (nopObserver) RecordReserved() {}

func (nopObserver) RecordFulfilled() {}

func (nopObserver) RecordReap(time.Duration, error) {}

func (nopObserver) SetLive(int) {}
