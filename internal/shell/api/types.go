package api

import (
	"time"

	"github.com/trueclassic/oosflow/internal/core/orders"
)

// =============================================================================
// Request Types
// =============================================================================

// TokenRequest is the request body for credential login.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BulkInventoryRequest is the request body for the bulk inventory lookup.
type BulkInventoryRequest struct {
	SKUs []string `json:"skus"`
}

// CreateUserRequest is the request body for creating a user.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ResetPasswordRequest is the request body for the self-service password
// reset.
type ResetPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ForceResetPasswordRequest is the request body for the admin password reset.
type ForceResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// CreateCommentRequest is the request body for adding an order comment.
type CreateCommentRequest struct {
	OrderID string `json:"order_id"`
	SKU     string `json:"sku,omitempty"`
	Text    string `json:"text"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// BannerResponse is the service banner served at the root path.
type BannerResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// TokenResponse is the response for a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// OOSOrdersResponse is the response for the per-source OOS order listing.
type OOSOrdersResponse struct {
	Source string                `json:"source"`
	Count  int                   `json:"count"`
	Orders []orders.OrderDetails `json:"orders"`
}

// RefreshResponse is the response for a refresh trigger.
type RefreshResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// LastRefreshResponse is the response for the last refresh time lookup.
type LastRefreshResponse struct {
	LastRefreshTime time.Time `json:"last_refresh_time"`
}

// UserResponse is a user record without credentials.
type UserResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CommentResponse is a stored order comment.
type CommentResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	SKU       string    `json:"sku,omitempty"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
