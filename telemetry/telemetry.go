package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the connection workers.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with job submission and execution.
type Collector interface {
	IncJobDone(worker, outcome string)
	ObserveJobDuration(worker string, d time.Duration)
	SetQueueDepth(worker string, depth int)
}

// Outcome labels reported through IncJobDone.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncJobDone(string, string)                {}
func (noopCollector) ObserveJobDuration(string, time.Duration) {}
func (noopCollector) SetQueueDepth(string, int)                {}

// PrometheusCollector exposes worker telemetry via Prometheus.
type PrometheusCollector struct {
	jobsDone    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
}

var (
	jobsDoneCounter     *prometheus.CounterVec
	jobsDoneCounterLock sync.Mutex
	jobDurationHist     *prometheus.HistogramVec
	jobDurationHistLock sync.Mutex
	queueDepthGauge     *prometheus.GaugeVec
	queueDepthGaugeLock sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	jobsDoneCounterLock.Lock()
	if jobsDoneCounter == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litepool_jobs_total",
			Help: "Number of jobs executed per connection worker, by outcome.",
		}, []string{"worker", "outcome"})
		if err := reg.Register(counter); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					jobsDoneCounter = existing
				} else {
					jobsDoneCounterLock.Unlock()
					return nil, err
				}
			} else {
				jobsDoneCounterLock.Unlock()
				return nil, err
			}
		} else {
			jobsDoneCounter = counter
		}
	}
	jobsDoneCounterLock.Unlock()

	jobDurationHistLock.Lock()
	if jobDurationHist == nil {
		hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litepool_job_duration_seconds",
			Help:    "Wall clock duration of job closures per connection worker.",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker"})
		if err := reg.Register(hist); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
					jobDurationHist = existing
				} else {
					jobDurationHistLock.Unlock()
					return nil, err
				}
			} else {
				jobDurationHistLock.Unlock()
				return nil, err
			}
		} else {
			jobDurationHist = hist
		}
	}
	jobDurationHistLock.Unlock()

	queueDepthGaugeLock.Lock()
	if queueDepthGauge == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litepool_queue_depth",
			Help: "Number of jobs waiting in a connection worker queue.",
		}, []string{"worker"})
		if err := reg.Register(gauge); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
					queueDepthGauge = existing
				} else {
					queueDepthGaugeLock.Unlock()
					return nil, err
				}
			} else {
				queueDepthGaugeLock.Unlock()
				return nil, err
			}
		} else {
			queueDepthGauge = gauge
		}
	}
	queueDepthGaugeLock.Unlock()

	return &PrometheusCollector{
		jobsDone:    jobsDoneCounter,
		jobDuration: jobDurationHist,
		queueDepth:  queueDepthGauge,
	}, nil
}

// IncJobDone increments the job counter for the given worker and outcome.
func (p *PrometheusCollector) IncJobDone(worker, outcome string) {
	if p == nil || p.jobsDone == nil {
		return
	}
	p.jobsDone.WithLabelValues(worker, outcome).Inc()
}

// ObserveJobDuration records the wall clock time spent inside a job closure.
func (p *PrometheusCollector) ObserveJobDuration(worker string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(worker).Observe(d.Seconds())
}

// SetQueueDepth updates the gauge tracking queued jobs per worker.
func (p *PrometheusCollector) SetQueueDepth(worker string, depth int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.WithLabelValues(worker).Set(float64(depth))
}
