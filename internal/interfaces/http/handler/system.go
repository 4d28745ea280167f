package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/concierge/gateway/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger reports readiness of one dependency
type Pinger func() error

// SystemHandler serves health and readiness endpoints
type SystemHandler struct {
	BaseHandler
	dbPing Pinger
	redis  *redis.Client
}

// NewSystemHandler creates a system handler. redisClient may be nil when the
// deployment runs with the in-memory dedup store.
func NewSystemHandler(dbPing Pinger, redisClient *redis.Client) *SystemHandler {
	return &SystemHandler{dbPing: dbPing, redis: redisClient}
}

// Health reports gateway liveness and per-dependency status
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	components := map[string]string{}
	healthy := true

	if h.dbPing != nil {
		if err := h.dbPing(); err != nil {
			components["database"] = "unreachable"
			healthy = false
		} else {
			components["database"] = "ok"
		}
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			components["redis"] = "unreachable"
			healthy = false
		} else {
			components["redis"] = "ok"
		}
	}

	resp := dto.HealthResponse{Status: "ok", Components: components}
	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
