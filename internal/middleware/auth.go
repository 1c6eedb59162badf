package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/handler"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/pkg/auth"
)

// Context keys set by Authenticate.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
)

// Capability names one guarded action class. Routes declare the capability
// they need; roles map to capability sets in exactly one place below.
type Capability string

const (
	CapManageRecords      Capability = "manage_records"
	CapReviewRequests     Capability = "review_requests"
	CapManageAppointments Capability = "manage_appointments"
	CapIssueDocuments     Capability = "issue_documents"
	CapViewAnalytics      Capability = "view_analytics"
	CapManageAccounts     Capability = "manage_accounts"
	CapManageTemplates    Capability = "manage_templates"
)

var roleCapabilities = map[model.Role]map[Capability]bool{
	model.RoleDoctor: {
		CapManageRecords:      true,
		CapReviewRequests:     true,
		CapManageAppointments: true,
		CapIssueDocuments:     true,
		CapViewAnalytics:      true,
	},
	model.RoleAdmin: {
		CapManageRecords:      true,
		CapReviewRequests:     true,
		CapManageAppointments: true,
		CapIssueDocuments:     true,
		CapViewAnalytics:      true,
		CapManageAccounts:     true,
		CapManageTemplates:    true,
	},
}

// HasCapability is the single authorization decision point.
func HasCapability(role model.Role, cap Capability) bool {
	return roleCapabilities[role][cap]
}

type AuthMiddleware struct {
	tokens *auth.TokenService
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores the caller's identity
// in the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.tokens.Validate(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRole, model.Role(claims.Role))
		c.Next()
	}
}

// RequireCapability gates a route group on the caller's role capabilities.
func (m *AuthMiddleware) RequireCapability(cap Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := CurrentRole(c)
		if !ok || !HasCapability(role, cap) {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated caller's id.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// CurrentRole returns the authenticated caller's role.
func CurrentRole(c *gin.Context) (model.Role, bool) {
	v, ok := c.Get(ContextUserRole)
	if !ok {
		return "", false
	}
	role, ok := v.(model.Role)
	return role, ok
}
