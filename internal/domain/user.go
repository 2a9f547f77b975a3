package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxBooks is the book quota applied to new accounts.
const DefaultMaxBooks = 10

// Common validation errors for User.
var (
	ErrEmptyEmail      = errors.New("email cannot be empty")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrEmptyPassword   = errors.New("password hash cannot be empty")
	ErrInvalidMaxBooks = errors.New("max books must be positive")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User is an account that owns books. Passwords are stored hashed; hashing
// happens in the auth service, never here.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	HashedPassword string    `json:"-"`
	MaxBooks       int       `json:"max_books"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a user with the default book quota.
func NewUser(email, fullName, hashedPassword string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		Email:          strings.ToLower(strings.TrimSpace(email)),
		FullName:       strings.TrimSpace(fullName),
		HashedPassword: hashedPassword,
		MaxBooks:       DefaultMaxBooks,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks the user fields.
func (u *User) Validate() error {
	if u.Email == "" {
		return ErrEmptyEmail
	}
	if !emailPattern.MatchString(u.Email) {
		return ErrInvalidEmail
	}
	if u.HashedPassword == "" {
		return ErrEmptyPassword
	}
	if u.MaxBooks <= 0 {
		return ErrInvalidMaxBooks
	}
	return nil
}
