package analyses

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoringJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vastu_scoring_jobs_total",
		Help: "Scoring runs by outcome.",
	}, []string{"outcome"})

	scoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vastu_scoring_duration_seconds",
		Help:    "Wall time of a scoring run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vastu_scoring_queue_depth",
		Help: "Scoring jobs enqueued and not yet picked up.",
	})
)

func observeScoring(ok bool, d time.Duration) {
	outcome := "completed"
	if !ok {
		outcome = "failed"
	}
	scoringJobs.WithLabelValues(outcome).Inc()
	scoringDuration.Observe(d.Seconds())
}
