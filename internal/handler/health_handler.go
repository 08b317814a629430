package handler

import (
	"database/sql"
	"net/http"
	"time"

	"secure-upload/pkg/database"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db           *sql.DB
	redis        *goredis.Client
	s3Configured bool
}

func NewHealthHandler(db *sql.DB, redis *goredis.Client, s3Configured bool) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, s3Configured: s3Configured}
}

// Check reports the reachability of each collaborator. Degraded
// dependencies return 503 so orchestrators stop routing traffic here.
func (h *HealthHandler) Check(c *gin.Context) {
	status := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	healthy := true

	if h.s3Configured {
		status["s3"] = "configured"
	} else {
		status["s3"] = "not configured"
		healthy = false
	}

	if h.db != nil {
		if err := database.HealthCheck(c.Request.Context(), h.db); err != nil {
			status["database"] = "error: " + err.Error()
			healthy = false
		} else {
			status["database"] = "connected"
		}
	} else {
		status["database"] = "not configured"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			status["redis"] = "connected"
		}
	} else {
		status["redis"] = "not configured"
	}

	if !healthy {
		status["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
