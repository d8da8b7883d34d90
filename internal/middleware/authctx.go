package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/httpx"
)

// Role is the caller's role within the booking domain.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// AuthContext identifies the caller of a Booking Engine or Payment
// Orchestrator operation. This repo never validates a JWT itself —
// authentication is an out-of-scope external collaborator; AuthContext is
// built from trusted upstream headers set by the gateway/auth tier.
type AuthContext struct {
	UserID string
	Role   Role
}

// IsStaffOrAdmin reports whether the caller may perform staff-gated
// operations (confirm, mark no-show, update, extend on behalf of others).
func (a AuthContext) IsStaffOrAdmin() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// CanActOnBooking reports whether the caller may act on a booking owned by
// ownerRef: staff/admin may act on any booking, customers only their own.
func (a AuthContext) CanActOnBooking(ownerRef string) bool {
	if a.IsStaffOrAdmin() {
		return true
	}
	return a.Role == RoleCustomer && a.UserID == ownerRef
}

const authContextKey = "auth_context"

// ExtractAuthContext reads X-User-Id/X-User-Role (set by the upstream
// gateway after authenticating the caller) and stores an AuthContext on the
// gin context for downstream handlers.
func ExtractAuthContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-Id")
		role := Role(c.GetHeader("X-User-Role"))
		if role == "" {
			role = RoleCustomer
		}
		c.Set(authContextKey, AuthContext{UserID: userID, Role: role})
		c.Next()
	}
}

// RequireAuth aborts with apperr.Unauthorized when no caller identity was
// extracted upstream.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, ok := GetAuthContext(c)
		if !ok || auth.UserID == "" {
			httpx.Fail(c, apperr.Unauthorized("authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff aborts with apperr.Forbidden unless the caller is staff or admin.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, ok := GetAuthContext(c)
		if !ok || !auth.IsStaffOrAdmin() {
			httpx.Fail(c, apperr.Forbidden("staff or admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetAuthContext retrieves the AuthContext stored by ExtractAuthContext.
func GetAuthContext(c *gin.Context) (AuthContext, bool) {
	v, exists := c.Get(authContextKey)
	if !exists {
		return AuthContext{}, false
	}
	auth, ok := v.(AuthContext)
	return auth, ok
}
