package backend

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Count of open streaming connections.",
	})

	sessionsRecording = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "sessions",
		Name:      "recording",
		Help:      "Count of open streaming connections with an active recording.",
	})

	framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "frames_total",
		Help:      "Count of inbound frames by kind and result.",
	}, []string{"kind", "result"})

	chunksStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "chunks_stored_total",
		Help:      "Count of binary chunks durably stored.",
	})

	chunkBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "chunk_bytes_total",
		Help:      "Sum of the sizes of stored chunks.",
	})

	uploadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "upload_failures_total",
		Help:      "Count of chunk uploads rejected by the blob store.",
	})

	uploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "relay",
		Name:      "upload_duration_seconds",
		Help:      "Time spent in blob store puts.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of HTTP requests by handler and status code.",
	}, []string{"handler", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests by handler.",
	}, []string{"handler"})
)

func init() {
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(sessionsRecording)
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(chunksStored)
	prometheus.MustRegister(chunkBytes)
	prometheus.MustRegister(uploadFailures)
	prometheus.MustRegister(uploadDuration)
	prometheus.MustRegister(httpRequests)
	prometheus.MustRegister(httpDuration)
}

// Frame result labels.
const (
	resultOK    = "ok"
	resultError = "error"
)

func countFrame(kind string, err error) {
	if err != nil {
		framesTotal.WithLabelValues(kind, resultError).Inc()
		return
	}
	framesTotal.WithLabelValues(kind, resultOK).Inc()
}

func instrument(name string, h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		httpDuration.MustCurryWith(prometheus.Labels{"handler": name}),
		promhttp.InstrumentHandlerCounter(
			httpRequests.MustCurryWith(prometheus.Labels{"handler": name}), h))
}

// instrumentSocket counts websocket upgrades without wrapping the
// ResponseWriter, which must stay hijackable.
func instrumentSocket(name string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequests.WithLabelValues(name, "101").Inc()
		h(w, r)
	})
}
