package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/httpx"
	"github.com/datquang03/studio-booking-engine/internal/middleware"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/payment"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// PaymentHandler exposes the Payment Orchestrator's session and webhook
// endpoints over HTTP.
type PaymentHandler struct {
	orchestrator *payment.Orchestrator
	log          logger.Logger
}

func NewPaymentHandler(orchestrator *payment.Orchestrator, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator, log: log}
}

// GetPaymentOptions handles POST /api/v1/payments/options/:bookingId
func (h *PaymentHandler) GetPaymentOptions(c *gin.Context) {
	opts, err := h.orchestrator.CreatePaymentOptions(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, opts)
}

type createSessionRequest struct {
	Kind   models.PaymentKind `json:"kind" binding:"required"`
	Amount int64              `json:"amount"`
}

// CreateSession handles POST /api/v1/payments/create/:bookingId
func (h *PaymentHandler) CreateSession(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	session, err := h.orchestrator.CreateSession(c.Request.Context(), c.Param("bookingId"), auth.UserID, req.Kind, req.Amount)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, session)
}

// CreateRemainder handles POST /api/v1/payments/remaining/:bookingId
func (h *PaymentHandler) CreateRemainder(c *gin.Context) {
	session, err := h.orchestrator.CreateRemainder(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, session)
}

// GetPaymentStatus handles GET /api/v1/payments/:paymentId
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	p, err := h.orchestrator.GetStatus(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, p)
}

// HandleWebhook handles POST /api/v1/payments/webhook, the gateway's async
// delivery endpoint. Reads the raw body itself (rather than ShouldBindJSON)
// because the signature must be verified over the exact bytes received.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpx.Fail(c, apperr.Validation("failed to read webhook body: %v", err))
		return
	}

	signature := c.GetHeader("x-payos-signature")
	outcome, err := h.orchestrator.HandleWebhook(c.Request.Context(), rawBody, signature)
	if err != nil {
		h.log.Warn("webhook handling failed", "error", err)
		httpx.Fail(c, err)
		return
	}

	httpx.OK(c, outcome)
}
