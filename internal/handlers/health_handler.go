package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// HealthHandler reports service and dependency liveness/readiness.
type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
	nats  *nats.Conn
	log   logger.Logger
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn, log logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, nats: natsConn, log: log}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "studio-booking-engine"})
}

// Live handles GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Ready handles GET /health/ready, checking every configured dependency.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		checks["database"] = "down"
		ready = false
	} else {
		checks["database"] = "up"
	}

	if h.redis == nil {
		checks["redis"] = "disabled"
	} else if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		checks["redis"] = "down"
		ready = false
	} else {
		checks["redis"] = "up"
	}

	if h.nats == nil {
		checks["nats"] = "disabled"
	} else if !h.nats.IsConnected() {
		checks["nats"] = "down"
		ready = false
	} else {
		checks["nats"] = "up"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": map[bool]string{true: "ready", false: "not ready"}[ready], "checks": checks})
}
