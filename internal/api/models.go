package api

import (
	"github.com/storyfab/storyfab-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"     validate:"required,email"`
	FullName string `json:"full_name" validate:"max=200"`
	Password string `json:"password"  validate:"required,min=8,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// UserID is the unique identifier for the authenticated user
	UserID int64 `json:"user_id"`

	// Token is the JWT token used for API authorization
	Token string `json:"token"`
}

// CreateBookRequest defines the payload for the book creation endpoint.
type CreateBookRequest struct {
	Title       string `json:"title"       validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=1000"`
	PageCount   int    `json:"page_count"  validate:"required,min=5,max=20"`
	Style       string `json:"style"       validate:"required,oneof=cartoon realistic manga classic"`
}

// UpdateBookRequest defines the payload for the book update endpoint.
// All fields are optional; absent fields keep their current value.
type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty"       validate:"omitempty,min=3,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	PageCount   *int    `json:"page_count,omitempty"  validate:"omitempty,min=5,max=20"`
	Style       *string `json:"style,omitempty"       validate:"omitempty,oneof=cartoon realistic manga classic"`
}

// BookListResponse defines the paginated response for the book list endpoint.
type BookListResponse struct {
	Books  []*domain.Book `json:"books"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// BookDetailResponse bundles a book with its pages.
type BookDetailResponse struct {
	Book  *domain.Book   `json:"book"`
	Pages []*domain.Page `json:"pages"`
}
