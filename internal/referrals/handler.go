package referrals

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"referral-backend/internal/shared/server/middleware"
	"referral-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document lifecycle routes to the router group.
// Pipeline and apply routes are registered by their own handlers.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/referrals", h.create)
	rg.POST("/referrals/:id/confirm", h.confirm)
	rg.POST("/referrals/:id/extract-text", h.extractText)
	rg.GET("/referrals/:id", h.get)
	rg.GET("/referrals/:id/status", h.status)
	rg.GET("/referrals", h.list)
	rg.DELETE("/referrals/:id", h.remove)
}

type createRequest struct {
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

type createResponse struct {
	DocumentID       string `json:"documentId"`
	StorageKey       string `json:"storageKey"`
	UploadURL        string `json:"uploadUrl"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	practiceID := middleware.PracticeIDFromContext(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ticket, err := h.Svc.CreateUpload(c.Request.Context(), userID, practiceID, req.FileName, req.MimeType, req.SizeBytes)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create upload", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, createResponse{
		DocumentID:       ticket.DocumentID,
		StorageKey:       ticket.StorageKey,
		UploadURL:        ticket.UploadURL,
		ExpiresInSeconds: int64(time.Until(ticket.ExpiresAt).Seconds()),
	})
}

type confirmRequest struct {
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
}

func (h *Handler) confirm(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	practiceID := middleware.PracticeIDFromContext(c)

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.StorageKey = strings.TrimSpace(req.StorageKey)

	doc, err := h.Svc.ConfirmUpload(c.Request.Context(), userID, practiceID, c.Param("id"), req.StorageKey, req.FileName, req.MimeType, req.SizeBytes)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to confirm upload", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, toResponse(doc))
}

type extractTextRequest struct {
	ContentText string `json:"contentText"`
}

func (h *Handler) extractText(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	var req extractTextRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	doc, err := h.Svc.ExtractText(c.Request.Context(), practiceID, c.Param("id"), req.ContentText)
	if err != nil {
		var stateErr *StateError
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.As(err, &stateErr):
			respond.Error(c, http.StatusConflict, "state_error", stateErr.Error(), nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusUnprocessableEntity, "extraction_failed", err.Error(), nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) get(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	doc, err := h.Svc.Get(c.Request.Context(), practiceID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) status(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	doc, err := h.Svc.Get(c.Request.Context(), practiceID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch status", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, toStatusResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	limit := 0
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	docs, err := h.Svc.List(c.Request.Context(), practiceID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}

	resp := make([]StatusResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toStatusResponse(doc))
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) remove(c *gin.Context) {
	practiceID := middleware.PracticeIDFromContext(c)

	err := h.Svc.Delete(c.Request.Context(), practiceID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrDeleteApplied):
			respond.Error(c, http.StatusConflict, "state_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete document", nil)
		}
		return
	}

	c.Status(http.StatusNoContent)
}
