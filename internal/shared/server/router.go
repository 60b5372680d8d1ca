package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"referral-backend/internal/apply"
	"referral-backend/internal/pipeline"
	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/config"
	"referral-backend/internal/shared/metrics"
	"referral-backend/internal/shared/server/middleware"
	"referral-backend/internal/shared/server/respond"
)

// DevUploadStore accepts direct PUT uploads in environments without a real
// presign backend.
type DevUploadStore interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
}

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config           config.Config
	ReferralsHandler *referrals.Handler
	PipelineHandler  *pipeline.Handler
	ApplyHandler     *apply.Handler
	DevUploadStore   DevUploadStore
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.Use(
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"EXTRACTION": {Rate: 2, Burst: 10},
			},
			GroupFor: extractionGroup,
		}),
	)

	registerMeRoutes(api)
	if deps.ReferralsHandler != nil {
		deps.ReferralsHandler.RegisterRoutes(api)
	}
	if deps.PipelineHandler != nil {
		deps.PipelineHandler.RegisterRoutes(api)
	}
	if deps.ApplyHandler != nil {
		deps.ApplyHandler.RegisterRoutes(api)
	}

	if isDevLike(deps.Config.Env) && deps.DevUploadStore != nil {
		r.PUT("/dev/uploads/*key", devUploadHandler(deps.DevUploadStore))
	}

	return r
}

// extractionGroup rate-limits only the endpoints that call the LLM.
func extractionGroup(c *gin.Context) string {
	path := c.FullPath()
	if strings.HasSuffix(path, "/fast-extraction") || strings.HasSuffix(path, "/extraction") ||
		strings.HasSuffix(path, "/fast-extraction/retry") || strings.HasSuffix(path, "/extraction/retry") {
		return "EXTRACTION"
	}
	return ""
}

func devUploadHandler(store DevUploadStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			respond.Error(c, http.StatusBadRequest, "validation_error", "storage key is required", nil)
			return
		}
		contentType := c.ContentType()
		limited := io.LimitReader(c.Request.Body, referrals.MaxUploadBytes+1)
		n, err := store.SaveWithKey(c.Request.Context(), key, contentType, limited)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store upload", nil)
			return
		}
		if n > referrals.MaxUploadBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "upload exceeds size limit", nil)
			return
		}
		c.Status(http.StatusOK)
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
