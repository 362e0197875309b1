package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors registered on the default prometheus registry and served on
// /metrics. The endpoint label is the route name passed to Server.route.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrbridge_http_requests_total",
			Help: "Requests answered, by method, route and status code.",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrbridge_http_request_duration_seconds",
			Help:    "Time from routing to the last byte written, by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	panicsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrbridge_http_panics_recovered_total",
			Help: "Handler panics answered with the internal error envelope.",
		},
	)

	// Recognition. source is json, formdata or websocket.
	ocrRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrbridge_ocr_requests_total",
			Help: "OCR attempts by input source and outcome.",
		},
		[]string{"source", "status"},
	)

	ocrProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrbridge_ocr_processing_duration_seconds",
			Help:    "Time spent inside the recognizer per image.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25, 50},
		},
		[]string{"source"},
	)

	ocrTextLength = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrbridge_ocr_text_length",
			Help:    "Bytes of joined text in successful OCR responses.",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"source"},
	)

	ocrRegionsDetected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrbridge_ocr_regions_detected",
			Help:    "Regions in the details list of successful OCR responses.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"source"},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrbridge_upload_size_bytes",
			Help:    "Bytes of image payload per OCR request, before decoding.",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)

	// type is minute, hour, quota_requests, quota_data or websocket.
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrbridge_rate_limit_hits_total",
			Help: "Requests and frames rejected with 429, by limit that tripped.",
		},
		[]string{"type"},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrbridge_websocket_active_connections",
			Help: "Open /ws/ocr connections.",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrbridge_websocket_messages_total",
			Help: "Frames on /ws/ocr by direction (sent, received).",
		},
		[]string{"direction"},
	)
)
