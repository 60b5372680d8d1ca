package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	fastStartedTotal   atomic.Uint64
	fastCompletedTotal atomic.Uint64
	fastFailedTotal    atomic.Uint64

	fullStartedTotal   atomic.Uint64
	fullCompletedTotal atomic.Uint64
	fullFailedTotal    atomic.Uint64

	appliedTotal atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	// Fast extraction targets seconds; full extraction runs up to a minute.
	fastDuration = newHistogram([]float64{250, 500, 1000, 2000, 3000, 5000, 10000, 30000})
	fullDuration = newHistogram([]float64{1000, 2500, 5000, 10000, 20000, 30000, 60000, 120000})
)

// IncFastExtractionStarted increments the fast-extraction started counter.
func IncFastExtractionStarted() {
	fastStartedTotal.Add(1)
}

// IncFastExtractionCompleted increments the fast-extraction completed counter.
func IncFastExtractionCompleted() {
	fastCompletedTotal.Add(1)
}

// IncFastExtractionFailed increments the fast-extraction failed counter.
func IncFastExtractionFailed() {
	fastFailedTotal.Add(1)
}

// ObserveFastExtractionDurationMs records a fast-extraction duration.
func ObserveFastExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	fastDuration.Observe(value)
}

// IncFullExtractionStarted increments the full-extraction started counter.
func IncFullExtractionStarted() {
	fullStartedTotal.Add(1)
}

// IncFullExtractionCompleted increments the full-extraction completed counter.
func IncFullExtractionCompleted() {
	fullCompletedTotal.Add(1)
}

// IncFullExtractionFailed increments the full-extraction failed counter.
func IncFullExtractionFailed() {
	fullFailedTotal.Add(1)
}

// ObserveFullExtractionDurationMs records a full-extraction duration.
func ObserveFullExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	fullDuration.Observe(value)
}

// IncReferralApplied increments the applied counter.
func IncReferralApplied() {
	appliedTotal.Add(1)
}

// IncExtractionJobsReceived increments the worker received counter.
func IncExtractionJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncExtractionJobsCompleted increments the worker completed counter.
func IncExtractionJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncExtractionJobsFailed increments the worker failed counter.
func IncExtractionJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncExtractionJobsDeletedUnrecoverable counts malformed jobs dropped from
// the queue without processing.
func IncExtractionJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Add(1)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "fast_extraction_started_total", "Total fast extractions started", fastStartedTotal.Load())
	writeCounter(&buf, "fast_extraction_completed_total", "Total fast extractions completed", fastCompletedTotal.Load())
	writeCounter(&buf, "fast_extraction_failed_total", "Total fast extractions failed", fastFailedTotal.Load())
	writeHistogram(&buf, "fast_extraction_duration_ms", "Fast extraction duration in milliseconds", fastDuration.Snapshot())
	writeCounter(&buf, "full_extraction_started_total", "Total full extractions started", fullStartedTotal.Load())
	writeCounter(&buf, "full_extraction_completed_total", "Total full extractions completed", fullCompletedTotal.Load())
	writeCounter(&buf, "full_extraction_failed_total", "Total full extractions failed", fullFailedTotal.Load())
	writeHistogram(&buf, "full_extraction_duration_ms", "Full extraction duration in milliseconds", fullDuration.Snapshot())
	writeCounter(&buf, "referrals_applied_total", "Total referrals applied to consultations", appliedTotal.Load())
	writeCounter(&buf, "extraction_jobs_received_total", "Total extraction jobs received from the queue", jobsReceivedTotal.Load())
	writeCounter(&buf, "extraction_jobs_completed_total", "Total extraction jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "extraction_jobs_failed_total", "Total extraction jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "extraction_jobs_deleted_unrecoverable_total", "Total malformed extraction jobs dropped", jobsDeletedUnrecoverableTotal.Load())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
