package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update persists doctor_id, status and prescription.
	Update(ctx context.Context, a *Appointment) error
	// ListByPatient embeds the doctor summary.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// List returns every appointment with the patient summary.
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
}

// UserLookup resolves the doctor named in a booking.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}
