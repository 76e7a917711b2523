package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prom implements Observer backed by Prometheus collectors.
type Prom struct {
	stageOutcomes *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	panics        prometheus.Counter
	requests      *prometheus.HistogramVec
	once          sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_outcomes_total",
			Help:      "Pipeline stage outcomes by stage and outcome",
		}, []string{"stage", "outcome"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Unexpected stage errors by stage",
		}, []string{"stage"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Panics recovered at the pipeline boundary",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Pipeline request duration by method and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.stageOutcomes, p.stageErrors, p.panics, p.requests)
	})
}

func (p *Prom) StageOutcome(stage string, outcome string) {
	p.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (p *Prom) StageError(stage string, _ string, _ error) {
	p.stageErrors.WithLabelValues(stage).Inc()
}

func (p *Prom) StagePanicked(_ string, _ any) {
	p.panics.Inc()
}

func (p *Prom) RequestCompleted(method string, status int, duration time.Duration) {
	p.requests.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}
