package emergency

import (
	"context"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
)

type CallRepository interface {
	Create(ctx context.Context, c *EmergencyCall) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCall, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyCall, error)
	// UpdateStatus persists status, driver_id and driver_status.
	UpdateStatus(ctx context.Context, c *EmergencyCall) error
	// List returns calls newest first with driver and patient summaries.
	// An empty status lists every call.
	List(ctx context.Context, status string, limit, offset int) ([]*EmergencyCall, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*EmergencyCall, int, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*EmergencyCall, int, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

// DriverDirectory is the part of the user store dispatch needs.
type DriverDirectory interface {
	identity.WorkerPool
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	ListAvailable(ctx context.Context, role string) ([]*identity.User, error)
}
