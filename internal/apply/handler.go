package apply

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/server/middleware"
	"referral-backend/internal/shared/server/respond"
)

// Handler exposes the apply operation over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the apply route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/referrals/:id/apply", h.apply)
}

func (h *Handler) apply(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	practiceID := middleware.PracticeIDFromContext(c)

	var req Request
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	result, err := h.Svc.Apply(c.Request.Context(), userID, practiceID, c.Param("id"), req)
	if err != nil {
		var stateErr *referrals.StateError
		switch {
		case errors.Is(err, referrals.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.As(err, &stateErr):
			respond.Error(c, http.StatusConflict, "state_error", stateErr.Error(), nil)
		case errors.Is(err, referrals.ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to apply referral", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, result)
}
