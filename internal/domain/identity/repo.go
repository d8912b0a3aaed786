package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	// List returns users of role, or all users when role is empty.
	List(ctx context.Context, role string, limit, offset int) ([]*User, int, error)
	ListAvailable(ctx context.Context, role string) ([]*User, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	// MarkAvailable sets is_available only when the worker holds no
	// dispatched call or assigned order, else ErrWorkerUnavailable.
	MarkAvailable(ctx context.Context, id uuid.UUID) error
	SetLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error
	WorkerPool
}

// WorkerPool reserves and releases drivers and delivery men. Reserve must
// only succeed for an available worker of the given role; callers run it in
// the same transaction as the job update.
type WorkerPool interface {
	Reserve(ctx context.Context, id uuid.UUID, role string) error
	Release(ctx context.Context, id uuid.UUID) error
}
