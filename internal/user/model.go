package user

import (
	"net/http"
	"time"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/apperror"
)

var (
	ErrNotFound           = apperror.New(http.StatusNotFound, "user not found")
	ErrEmailAlreadyUsed   = apperror.New(http.StatusConflict, "email already used")
	ErrInvalidCredentials = apperror.New(http.StatusUnauthorized, "invalid email or password")
	ErrEmailRequired      = apperror.New(http.StatusBadRequest, "email is required")
	ErrPasswordTooShort   = apperror.New(http.StatusBadRequest, "password is too short")
	ErrPasswordTooLong    = apperror.New(http.StatusBadRequest, "password is too long")
)

// Role values stored in public.users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a user in the system.
type User struct {
	ID           string // UUID
	Email        string
	PasswordHash string
	Name         string
	Role         string
	CreatedAt    time.Time
}

// IsAdmin reports whether the user may act on any reservation.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
