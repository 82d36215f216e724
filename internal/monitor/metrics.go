package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/scheduler"
)

// Metrics are the daemon's Prometheus collectors.
type Metrics struct {
	Ticks              prometheus.Counter
	SessionsRegistered prometheus.Gauge
	SessionsCompleted  prometheus.Counter
	Jobs               *prometheus.GaugeVec
}

// NewMetrics registers the daemon's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "stoker_ticks_total",
			Help: "Scheduler ticks executed.",
		}),
		SessionsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stoker_sessions_registered",
			Help: "Sessions currently registered with the scheduler.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stoker_sessions_completed_total",
			Help: "Sessions that reached complete and were deregistered.",
		}),
		Jobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stoker_jobs",
			Help: "Jobs by lifecycle status across all sessions.",
		}, []string{"status"}),
	}
}

// observe refreshes the gauges from the scheduler's current table.
func (m *Metrics) observe(sched *scheduler.Scheduler, registered int) {
	if m == nil {
		return
	}
	m.SessionsRegistered.Set(float64(registered))
	counts := sched.StatusCounts()
	for _, status := range []domain.JobStatus{
		domain.StatusWaiting, domain.StatusReady, domain.StatusRunning,
		domain.StatusComplete, domain.StatusFailed,
	} {
		m.Jobs.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.Ticks.Inc()
	}
}

func (m *Metrics) completed(n int) {
	if m != nil {
		m.SessionsCompleted.Add(float64(n))
	}
}
