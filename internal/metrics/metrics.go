// Package metrics holds Sectify's ambient Prometheus instrumentation.
// spec.md's Non-goals exclude rate-limiting middleware and other outer
// surfaces, but ambient observability is carried regardless — this mirrors
// the teacher's own use of structured logging as a baseline concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsServed counts HLS segment responses.
	SegmentsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sectify_hls_segments_served_total",
		Help: "Total number of HLS segment files served.",
	})

	// PackagingRuns counts completed (or idempotently reused) packaging calls.
	PackagingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectify_hls_packaging_runs_total",
		Help: "Total HLS packaging invocations, by outcome.",
	}, []string{"outcome"})

	// ReaperSweptSegments counts .ts files the Reaper has deleted.
	ReaperSweptSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sectify_reaper_segments_deleted_total",
		Help: "Total number of .ts segment files deleted by the Reaper.",
	})

	// LoginAttempts counts login attempts by outcome.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectify_login_attempts_total",
		Help: "Total login attempts, by outcome.",
	}, []string{"outcome"})

	// KeyResolutions counts key-alias resolutions by outcome.
	KeyResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectify_key_resolutions_total",
		Help: "Total key alias resolutions, by outcome.",
	}, []string{"outcome"})
)
