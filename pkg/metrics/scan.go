package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScanMetrics records scan pipeline outcomes.
type ScanMetrics struct {
	duration       *prometheus.HistogramVec
	completed      *prometheus.CounterVec
	failed         *prometheus.CounterVec
	matches        *prometheus.CounterVec
	degradedScores prometheus.Counter
}

// NewScanMetrics registers the scan metrics on the provided registerer.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		return &ScanMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scan_duration_seconds",
		Help:    "Duration of full scans in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"platform_count"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_completed_total",
		Help: "Scans that reached the completed state.",
	}, []string{"org"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_failed_total",
		Help: "Scans that reached the failed state.",
	}, []string{"org"})
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_matches_total",
		Help: "Matches persisted above the similarity threshold.",
	}, []string{"platform"})
	degradedScores := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_degraded_scores_total",
		Help: "Candidates scored with the degraded fallback value.",
	})
	reg.MustRegister(duration, completed, failed, matches, degradedScores)
	return &ScanMetrics{
		duration:       duration,
		completed:      completed,
		failed:         failed,
		matches:        matches,
		degradedScores: degradedScores,
	}
}

// ObserveDuration records how long a full scan took.
func (s *ScanMetrics) ObserveDuration(platformCount string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(platformCount)).Observe(duration.Seconds())
}

// IncCompleted increments the completed counter for an org.
func (s *ScanMetrics) IncCompleted(org string) {
	if s == nil || s.completed == nil {
		return
	}
	s.completed.WithLabelValues(normalizeLabel(org)).Inc()
}

// IncFailed increments the failed counter for an org.
func (s *ScanMetrics) IncFailed(org string) {
	if s == nil || s.failed == nil {
		return
	}
	s.failed.WithLabelValues(normalizeLabel(org)).Inc()
}

// AddMatches adds the number of persisted matches for a platform.
func (s *ScanMetrics) AddMatches(platform string, count int) {
	if s == nil || s.matches == nil || count <= 0 {
		return
	}
	s.matches.WithLabelValues(normalizeLabel(platform)).Add(float64(count))
}

// IncDegradedScore counts a degraded scoring fallback.
func (s *ScanMetrics) IncDegradedScore() {
	if s == nil || s.degradedScores == nil {
		return
	}
	s.degradedScores.Inc()
}
