package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/db"
)

const (
	StatusConfirmed = "CONFIRMED"
	StatusCompleted = "COMPLETED"
)

var (
	ErrNotFound            = db.ErrNotFound
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", db.ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", db.ErrNotFound)
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// Appointment maps to the appointment table. Date is kept as entered.
type Appointment struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID     *uuid.UUID        `db:"doctor_id" json:"doctor_id,omitempty"`
	Reason       string            `db:"reason" json:"reason"`
	Date         string            `db:"date" json:"date"`
	Status       string            `db:"status" json:"status"`
	Prescription *string           `db:"prescription" json:"prescription,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
	Doctor       *identity.Summary `db:"-" json:"doctor,omitempty"`
	Patient      *identity.Summary `db:"-" json:"patient,omitempty"`
}

type BookRequest struct {
	Reason   string  `json:"reason"`
	Date     string  `json:"date"`
	DoctorID *string `json:"doctor_id"`
}

type PrescriptionRequest struct {
	Prescription string `json:"prescription"`
}

// COMPLETED may be re-entered so a doctor can amend a prescription.
var transitions = map[string][]string{
	StatusConfirmed: {StatusCompleted},
	StatusCompleted: {StatusCompleted},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
