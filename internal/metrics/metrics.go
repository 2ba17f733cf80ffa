package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maskd_active_sessions",
		Help: "Number of active WebRTC sessions",
	})
	TherapyPlaying = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maskd_therapy_playing",
		Help: "Number of sessions with therapy playback running",
	})
	TestTonePlaying = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maskd_testtone_playing",
		Help: "Number of sessions with a test tone running",
	})
)

// Counters
var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskd_sessions_created_total",
		Help: "Total sessions created",
	})
	SessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskd_sessions_rejected_total",
		Help: "Sessions rejected due to capacity limit",
	})
	BuffersSynthesizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maskd_buffers_synthesized_total",
		Help: "Total ambient buffers synthesized by texture",
	}, []string{"texture"})
	AutoStopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskd_auto_stops_total",
		Help: "Therapy runs ended by the auto-stop timer",
	})
	EncodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskd_opus_encode_errors_total",
		Help: "Total Opus encode failures",
	})
	DroppedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskd_dropped_frames_total",
		Help: "Rendered frames dropped because a consumer fell behind",
	})
)

// Histograms
var (
	SynthesisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maskd_synthesis_duration_ms",
		Help:    "Buffer synthesis duration in milliseconds by texture",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"texture"})
)
