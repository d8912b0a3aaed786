package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/platform/auth"
	"github.com/medsos/medsos/internal/platform/db"
)

var (
	ErrNotFound           = db.ErrNotFound
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWorkerUnavailable  = errors.New("worker is not available")
	ErrNotWorker          = errors.New("user is not a driver or delivery man")
)

// User is an account of any role. Drivers and delivery men are "workers":
// they carry an availability flag and a last known location.
type User struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	Role             string    `db:"role" json:"role"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	IsAvailable      bool      `db:"is_available" json:"is_available"`
	CurrentLatitude  *float64  `db:"current_latitude" json:"current_latitude,omitempty"`
	CurrentLongitude *float64  `db:"current_longitude" json:"current_longitude,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Summary is the slice of a user embedded in other resources.
type Summary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone *string   `json:"phone,omitempty"`
}

func (u *User) Summary() *Summary {
	return &Summary{ID: u.ID, Name: u.Name, Phone: u.Phone}
}

func (u *User) IsWorker() bool {
	return IsWorkerRole(u.Role)
}

func ValidRole(role string) bool {
	switch role {
	case auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin, auth.RoleDriver, auth.RoleDeliveryMan:
		return true
	}
	return false
}

func IsWorkerRole(role string) bool {
	return role == auth.RoleDriver || role == auth.RoleDeliveryMan
}

// SelfRegistrable reports whether a role can be chosen at sign-up. Admins
// are created from the command line.
func SelfRegistrable(role string) bool {
	return ValidRole(role) && role != auth.RoleAdmin
}

type RegisterRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginUser struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      LoginUser `json:"user"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Phone    *string `json:"phone"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ValidCoordinates reports whether lat/lng are on the globe.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
