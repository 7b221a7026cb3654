package metrics

import (
	"context"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder turns the stream of call updates into Prometheus metrics.
type Recorder struct {
	started   *prometheus.CounterVec
	connected prometheus.Counter
	ended     *prometheus.CounterVec
	active    prometheus.Gauge
	duration  prometheus.Histogram

	now func() time.Time
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		started: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ya_calls_started_total",
			Help: "Calls placed or received",
		}, []string{"direction"}),
		connected: f.NewCounter(prometheus.CounterOpts{
			Name: "ya_calls_connected_total",
			Help: "Calls that reached the connected state",
		}),
		ended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ya_calls_ended_total",
			Help: "Calls that returned to idle, by reason",
		}, []string{"reason"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "ya_call_active",
			Help: "1 while a call is in progress",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ya_call_duration_seconds",
			Help:    "Time from connect to hang up",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		now: time.Now,
	}
}

// Watch consumes updates until ctx is done or the channel closes.
func (r *Recorder) Watch(ctx context.Context, updates <-chan domain.CallUpdate) {
	prev := domain.StateIdle
	var connectedAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			connectedAt = r.observe(prev, u, connectedAt)
			prev = u.State
		}
	}
}

func (r *Recorder) observe(prev domain.CallState, u domain.CallUpdate, connectedAt time.Time) time.Time {
	if prev == u.State {
		return connectedAt
	}

	switch u.State {
	case domain.StateCalling, domain.StateRinging:
		if prev == domain.StateIdle {
			direction := "outgoing"
			if u.IsIncoming {
				direction = "incoming"
			}
			r.started.WithLabelValues(direction).Inc()
			r.active.Set(1)
		}
	case domain.StateConnected:
		r.connected.Inc()
		r.active.Set(1)
		return r.now()
	case domain.StateIdle:
		reason := string(u.Reason)
		if reason == "" {
			reason = "unknown"
		}
		r.ended.WithLabelValues(reason).Inc()
		r.active.Set(0)
		if !connectedAt.IsZero() {
			r.duration.Observe(r.now().Sub(connectedAt).Seconds())
		}
		return time.Time{}
	}
	return connectedAt
}
