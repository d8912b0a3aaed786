package emergency

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/db"
)

// Call status.
const (
	StatusPending    = "PENDING"
	StatusDispatched = "DISPATCHED"
	StatusResolved   = "RESOLVED"
)

// Driver job status.
const (
	DriverAssigned  = "ASSIGNED"
	DriverEnRoute   = "EN_ROUTE"
	DriverArrived   = "ARRIVED"
	DriverCompleted = "COMPLETED"
)

var (
	ErrNotFound          = db.ErrNotFound
	ErrCallNotFound      = fmt.Errorf("emergency call %w", db.ErrNotFound)
	ErrDriverNotFound    = fmt.Errorf("driver %w", db.ErrNotFound)
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("call is not assigned to this driver")
	ErrWorkerUnavailable = identity.ErrWorkerUnavailable
)

// EmergencyCall maps to the emergency_call table.
type EmergencyCall struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	PatientID    *uuid.UUID        `db:"patient_id" json:"patient_id,omitempty"`
	Latitude     float64           `db:"latitude" json:"latitude"`
	Longitude    float64           `db:"longitude" json:"longitude"`
	Status       string            `db:"status" json:"status"`
	DriverID     *uuid.UUID        `db:"driver_id" json:"driver_id,omitempty"`
	DriverStatus *string           `db:"driver_status" json:"driver_status,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
	Driver       *identity.Summary `db:"-" json:"driver,omitempty"`
	Patient      *identity.Summary `db:"-" json:"patient,omitempty"`
}

func (c *EmergencyCall) driverStatus() string {
	if c.DriverStatus == nil {
		return ""
	}
	return *c.DriverStatus
}

type TriggerRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type TriggerResponse struct {
	CallID uuid.UUID `json:"call_id"`
	Status string    `json:"status"`
}

type CallStatus struct {
	ID           uuid.UUID `json:"id"`
	Status       string    `json:"status"`
	DriverStatus *string   `json:"driver_status"`
}

type AssignRequest struct {
	DriverID string `json:"driver_id"`
}

type DriverStatusRequest struct {
	DriverStatus string `json:"driver_status"`
}

// DriverSuggestion is an available driver ranked for a call. DistanceKm is
// nil when the driver has not reported a location.
type DriverSuggestion struct {
	Driver     *identity.Summary `json:"driver"`
	DistanceKm *float64          `json:"distance_km"`
}
