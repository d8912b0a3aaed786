package pharmacy

import (
	"context"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns medicines ordered by name.
	List(ctx context.Context, limit, offset int) ([]*Medicine, int, error)
	// DecrementStock takes qty units only if that many are in stock,
	// otherwise it returns ErrInsufficientStock.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

type OrderRepository interface {
	// Create inserts the order and its items.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate locks the order row until the transaction ends. Items are not loaded.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	// UpdateStatus persists status, delivery_man_id and delivery_status.
	UpdateStatus(ctx context.Context, o *Order) error
	// List returns orders newest first with items and customer and delivery man
	// summaries. An empty status lists every order.
	List(ctx context.Context, status string, limit, offset int) ([]*Order, int, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error)
	ListByDeliveryMan(ctx context.Context, deliveryManID uuid.UUID, limit, offset int) ([]*Order, int, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

// WorkerDirectory is the part of the user store delivery assignment needs.
type WorkerDirectory interface {
	identity.WorkerPool
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}
