package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audio pipeline counters. The worker increments outcomes; the
// submission handler increments rejections by reason.
var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_jobs_started_total",
		Help: "Audio jobs dispatched to the worker",
	})

	JobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_jobs_succeeded_total",
		Help: "Audio jobs that linked an artifact and debited tokens",
	})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_jobs_failed_total",
		Help: "Audio jobs rolled back, by failing stage",
	}, []string{"stage"})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_submissions_rejected_total",
		Help: "Submissions rejected before dispatch, by reason",
	}, []string{"reason"})

	LocksSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_locks_swept_total",
		Help: "Orphaned in-progress locks cleared by the reconciliation sweep",
	})
)
