package healthcard

import (
	"context"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
)

type Repository interface {
	Get(ctx context.Context, patientID uuid.UUID) (*HealthCard, error)
	// Upsert inserts the card or replaces every field of the existing one.
	Upsert(ctx context.Context, h *HealthCard) error
}

// UserLookup resolves the patient a doctor asks about.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}
