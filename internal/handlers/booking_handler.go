package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/booking"
	"github.com/datquang03/studio-booking-engine/internal/httpx"
	"github.com/datquang03/studio-booking-engine/internal/middleware"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// BookingHandler exposes the Booking Engine's lifecycle operations over
// HTTP.
type BookingHandler struct {
	engine *booking.Engine
	log    logger.Logger
}

func NewBookingHandler(engine *booking.Engine, log logger.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, log: log}
}

type detailDTO struct {
	Kind         models.BookingDetailKind `json:"kind" binding:"required"`
	TargetRef    string                   `json:"targetRef" binding:"required"`
	Quantity     int                      `json:"quantity" binding:"required"`
	PricePerUnit int64                    `json:"pricePerUnit"`
}

type createBookingRequest struct {
	SlotID    string         `json:"slotId"`
	StudioID  string         `json:"studioId"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	PayType   models.PayType `json:"payType" binding:"required"`
	Details   []detailDTO    `json:"details"`
	PromoCode string         `json:"promoCode"`
	Notes     string         `json:"notes"`
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	details := make([]booking.DetailInput, 0, len(req.Details))
	for _, d := range req.Details {
		details = append(details, booking.DetailInput{
			Kind:         d.Kind,
			TargetRef:    d.TargetRef,
			Quantity:     d.Quantity,
			PricePerUnit: d.PricePerUnit,
		})
	}

	b, err := h.engine.Create(c.Request.Context(), booking.CreateInput{
		CustomerRef: auth.UserID,
		SlotID:      req.SlotID,
		StudioID:    req.StudioID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		PayType:     req.PayType,
		Details:     details,
		PromoCode:   req.PromoCode,
		Notes:       req.Notes,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	httpx.Created(c, b)
}

// GetBooking handles GET /api/v1/bookings/:bookingId
func (h *BookingHandler) GetBooking(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	b, err := h.engine.GetByID(c.Request.Context(), c.Param("bookingId"), auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, b)
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	status := models.BookingStatus(c.Query("status"))
	limit, offset := parsePagination(c)

	var (
		bookings []models.Booking
		total    int64
		err      error
	)
	if auth.IsStaffOrAdmin() && c.Query("all") == "true" {
		bookings, total, err = h.engine.ListAll(c.Request.Context(), status, limit, offset)
	} else {
		bookings, total, err = h.engine.ListForCustomer(c.Request.Context(), auth.UserID, status, limit, offset)
	}
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	httpx.OK(c, gin.H{"items": bookings, "total": total, "limit": limit, "offset": offset})
}

// ConfirmBooking handles POST /api/v1/bookings/:bookingId/confirm (staff-only
// manual override; the common path is automatic via payment webhook).
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}
	b, err := h.engine.Confirm(c.Request.Context(), c.Param("bookingId"), &auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, b)
}

// CheckIn handles POST /api/v1/bookings/:bookingId/check-in
func (h *BookingHandler) CheckIn(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}
	b, err := h.engine.CheckIn(c.Request.Context(), c.Param("bookingId"), auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, b)
}

// CheckOut handles POST /api/v1/bookings/:bookingId/check-out
func (h *BookingHandler) CheckOut(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}
	b, err := h.engine.CheckOut(c.Request.Context(), c.Param("bookingId"), auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, b)
}

// GetExtensionAvailability handles GET /api/v1/bookings/:bookingId/extension
func (h *BookingHandler) GetExtensionAvailability(c *gin.Context) {
	avail, err := h.engine.CheckExtensionAvailability(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, avail)
}

type extendBookingRequest struct {
	NewEndTime time.Time `json:"newEndTime" binding:"required"`
}

// ExtendBooking handles POST /api/v1/bookings/:bookingId/extend
func (h *BookingHandler) ExtendBooking(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req extendBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	b, additionalAmount, err := h.engine.Extend(c.Request.Context(), c.Param("bookingId"), req.NewEndTime, auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"booking": b, "additionalAmount": additionalAmount})
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking handles POST /api/v1/bookings/:bookingId/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req cancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	b, result, err := h.engine.Cancel(c.Request.Context(), c.Param("bookingId"), req.Reason, auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"booking": b, "refund": result})
}

type markNoShowRequest struct {
	CheckInTime *time.Time `json:"checkInTime"`
}

// MarkNoShow handles POST /api/v1/bookings/:bookingId/no-show (staff-only
// manual override; the common path is the background sweep).
func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req markNoShowRequest
	_ = c.ShouldBindJSON(&req)

	b, err := h.engine.MarkNoShow(c.Request.Context(), c.Param("bookingId"), req.CheckInTime, &auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, b)
}

type updateBookingRequest struct {
	Notes           *string     `json:"notes"`
	DiscountAmount  *int64      `json:"discountAmount"`
	AddDetails      []detailDTO `json:"addDetails"`
	RemoveDetailIDs []uint      `json:"removeDetailIds"`
}

// UpdateBooking handles PATCH /api/v1/bookings/:bookingId (staff-only).
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		httpx.Fail(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	addDetails := make([]booking.DetailInput, 0, len(req.AddDetails))
	for _, d := range req.AddDetails {
		addDetails = append(addDetails, booking.DetailInput{
			Kind:         d.Kind,
			TargetRef:    d.TargetRef,
			Quantity:     d.Quantity,
			PricePerUnit: d.PricePerUnit,
		})
	}

	b, err := h.engine.Update(c.Request.Context(), c.Param("bookingId"), booking.UpdateInput{
		Notes:           req.Notes,
		DiscountAmount:  req.DiscountAmount,
		AddDetails:      addDetails,
		RemoveDetailIDs: req.RemoveDetailIDs,
	}, auth)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, b)
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	offset = (page - 1) * limit
	return limit, offset
}
