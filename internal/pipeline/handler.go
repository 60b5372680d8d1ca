package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"referral-backend/internal/extraction"
	"referral-backend/internal/queue"
	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/server/middleware"
	"referral-backend/internal/shared/server/respond"
)

const maxConflictBatch = 20

// Handler exposes the extraction phases over HTTP. When Queue is set,
// callers may ask for a phase to run as a background job instead of inline.
type Handler struct {
	Fast  *FastService
	Full  *FullService
	Repo  referrals.Repo
	Queue queue.Client
}

// NewHandler constructs a Handler.
func NewHandler(fast *FastService, full *FullService, repo referrals.Repo) *Handler {
	return &Handler{Fast: fast, Full: full, Repo: repo}
}

// RegisterRoutes attaches pipeline routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/referrals/:id/fast-extraction", h.runFast)
	rg.POST("/referrals/:id/fast-extraction/retry", h.retryFast)
	rg.POST("/referrals/:id/extraction", h.runFull)
	rg.POST("/referrals/:id/extraction/retry", h.retryFull)
	rg.POST("/referrals/conflicts", h.conflicts)
}

type runRequest struct {
	Async bool `json:"async"`
}

func (h *Handler) runFast(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	if h.enqueueIfAsync(c, queue.PhaseFast) {
		return
	}

	result, err := h.Fast.Run(c.Request.Context(), practiceID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, result)
}

func (h *Handler) retryFast(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	result, err := h.Fast.Retry(c.Request.Context(), practiceID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, result)
}

func (h *Handler) runFull(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	if h.enqueueIfAsync(c, queue.PhaseFull) {
		return
	}

	data, err := h.Full.Run(c.Request.Context(), practiceID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, data)
}

type retryFullRequest struct {
	HigherAccuracy bool `json:"higherAccuracy"`
	Async          bool `json:"async"`
}

func (h *Handler) retryFull(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	var req retryFullRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	if req.Async && req.HigherAccuracy && h.Queue != nil {
		h.enqueue(c, queue.PhaseFull, true)
		return
	}

	var data extraction.ReferralExtractedData
	var err error
	if req.HigherAccuracy {
		data, err = h.Full.RetryHigherAccuracy(c.Request.Context(), practiceID, c.Param("id"))
	} else {
		data, err = h.Full.Retry(c.Request.Context(), practiceID, c.Param("id"))
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, data)
}

type conflictsRequest struct {
	DocumentIDs []string `json:"documentIds"`
}

// conflicts runs the conflict detector over the fast-extraction results of a
// batch of documents. Documents whose fast phase has not completed
// contribute nothing.
func (h *Handler) conflicts(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	var req conflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", nil)
		return
	}
	if len(req.DocumentIDs) > maxConflictBatch {
		respond.Error(c, http.StatusBadRequest, "validation_error", "too many documents in batch", nil)
		return
	}

	results := make([]*extraction.FastExtractedData, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		doc, err := h.Repo.GetByID(c.Request.Context(), practiceID, id)
		if err != nil {
			if errors.Is(err, referrals.ErrNotFound) {
				respond.Error(c, http.StatusNotFound, "not_found", "document not found: "+id, nil)
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load documents", nil)
			return
		}
		results = append(results, doc.FastData)
	}

	respond.JSON(c, http.StatusOK, extraction.DetectConflicts(results))
}

// enqueueIfAsync publishes a phase job and answers 202 when the caller asked
// for background processing. Falls through to inline execution when no queue
// is configured.
func (h *Handler) enqueueIfAsync(c *gin.Context, phase string) bool {
	if h.Queue == nil || c.Request.ContentLength <= 0 {
		return false
	}

	var req runRequest
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return false
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err := json.Unmarshal(body, &req); err != nil || !req.Async {
		return false
	}

	h.enqueue(c, phase, false)
	return true
}

// enqueue publishes a phase job and answers 202, or 502 when the queue
// rejects it.
func (h *Handler) enqueue(c *gin.Context, phase string, higherAccuracy bool) {
	msg := queue.Message{
		DocumentID:     c.Param("id"),
		PracticeID:     middleware.PracticeIDFromContext(c),
		Phase:          phase,
		HigherAccuracy: higherAccuracy,
		RequestID:      middleware.RequestIDFromContext(c),
		EnqueuedAt:     time.Now().UTC().Format(time.RFC3339),
		Version:        1,
	}
	if err := h.Queue.Send(c.Request.Context(), msg); err != nil {
		respond.Error(c, http.StatusBadGateway, "queue_error", "failed to enqueue extraction job", nil)
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"queued": true, "phase": phase})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var stateErr *referrals.StateError
	var extErr *ExternalServiceError
	var parseErr *extraction.Error
	switch {
	case errors.Is(err, referrals.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.As(err, &stateErr):
		respond.Error(c, http.StatusConflict, "state_error", stateErr.Error(), nil)
	case errors.Is(err, referrals.ErrNoData):
		respond.Error(c, http.StatusUnprocessableEntity, "no_data", err.Error(), nil)
	case errors.As(err, &parseErr):
		respond.Error(c, http.StatusUnprocessableEntity, "extraction_failed", parseErr.Error(), nil)
	case errors.As(err, &extErr):
		respond.Error(c, http.StatusBadGateway, "external_service_error", extErr.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "extraction failed", nil)
	}
}
