package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var countJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "count_jobs_in_queue",
	Help: "Number of jobs in queue",
})

var dispatcherSignalCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dispatcher_signal_count",
	Help: "How often the dispatcher has been signaled to start a worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active workers",
})

var documentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "document_transitions_total",
	Help: "Document lifecycle transitions labelled by target status",
}, []string{"status"})

var ingestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_failures_total",
	Help: "Failed ingestions labelled by error kind",
}, []string{"kind"})

var chunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunks_indexed_total",
	Help: "Chunks durably written to the vector index",
})

var retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "external_call_retries_total",
	Help: "Retries of external calls labelled by service",
}, []string{"service"})

var droppedCitations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "citation_markers_dropped_total",
	Help: "Citation markers emitted by the model that did not resolve to a context chunk",
})

var retrievalResults = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "retrieval_results",
	Help:    "Chunks kept per retrieval after threshold and truncation",
	Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
})

var contextDrops = promauto.NewCounter(prometheus.CounterOpts{
	Name: "context_chunks_dropped_total",
	Help: "Chunks dropped from assembled context to fit the token budget",
})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps server sent events working through the recorder.
func (r *HttpStatusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func IncrementJobsInQueue() {
	countJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	countJobsInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}
func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

func CaptureDocumentTransition(status string) {
	documentTransitions.WithLabelValues(status).Inc()
}

func CaptureIngestFailure(kind string) {
	ingestFailures.WithLabelValues(kind).Inc()
}

func AddChunksIndexed(n int) {
	chunksIndexed.Add(float64(n))
}

func IncrementRetry(service string) {
	retriesTotal.WithLabelValues(service).Inc()
}

func IncrementDroppedCitations() {
	droppedCitations.Inc()
}

func CaptureRetrievalResults(n int) {
	retrievalResults.Observe(float64(n))
}

func AddContextDrops(n int) {
	contextDrops.Add(float64(n))
}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "process_request_duration_seconds",
	Help:    "Total time spent processing a job.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 300},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureJobMetrics(label string, timeElapsed time.Duration) {
	requestDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}
