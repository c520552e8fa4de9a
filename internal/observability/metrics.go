package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	catalogRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebusctl",
			Subsystem: "catalog",
			Name:      "rows_total",
			Help:      "Catalog rows read, by file kind and outcome.",
		},
		[]string{"kind", "result"},
	)
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebusctl",
			Subsystem: "registry",
			Name:      "lookups_total",
			Help:      "Registry lookups by name or by observed master.",
		},
		[]string{"by", "result"},
	)
	codecOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebusctl",
			Subsystem: "codec",
			Name:      "operations_total",
			Help:      "Encode and decode calls by part and result.",
		},
		[]string{"op", "part", "result"},
	)
	codecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebusctl",
			Subsystem: "codec",
			Name:      "operation_duration_seconds",
			Help:      "Encode and decode duration in seconds.",
			Buckets:   []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		},
		[]string{"op"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebusctl",
			Subsystem: "bus",
			Name:      "frames_total",
			Help:      "Observed frames by result.",
		},
		[]string{"result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebusctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Status server requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebusctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status server request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Result labels.
const (
	ResultOK          = "ok"
	ResultMalformed   = "malformed"
	ResultDuplicate   = "duplicate"
	ResultNotFound    = "not_found"
	ResultFieldFormat = "field_format"
	ResultIncomplete  = "incomplete"
	ResultError       = "error"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(catalogRows, lookups, codecOps, codecDuration, frames, httpRequests, httpDuration)
	})
}

// ResultLabel maps an error to its error-kind label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, protocol.ErrMalformedDefinition):
		return ResultMalformed
	case errors.Is(err, protocol.ErrDuplicateKey):
		return ResultDuplicate
	case errors.Is(err, protocol.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, protocol.ErrFieldFormat):
		return ResultFieldFormat
	case errors.Is(err, protocol.ErrIncompleteData):
		return ResultIncomplete
	}
	return ResultError
}

func RecordCatalogRow(kind, result string) {
	RegisterMetrics()
	catalogRows.WithLabelValues(kind, result).Inc()
}

func RecordLookup(by string, found bool) {
	RegisterMetrics()
	result := "hit"
	if !found {
		result = "miss"
	}
	lookups.WithLabelValues(by, result).Inc()
}

func RecordCodec(op, part string, err error, duration time.Duration) {
	RegisterMetrics()
	codecOps.WithLabelValues(op, part, ResultLabel(err)).Inc()
	codecDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordFrame(err error) {
	RegisterMetrics()
	frames.WithLabelValues(ResultLabel(err)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
