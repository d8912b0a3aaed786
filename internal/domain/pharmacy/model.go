package pharmacy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/db"
)

// Order status.
const (
	StatusPending   = "PENDING"
	StatusAssigned  = "ASSIGNED"
	StatusDelivered = "DELIVERED"
)

// Delivery job status.
const (
	DeliveryAssigned       = "ASSIGNED"
	DeliveryPickedUp       = "PICKED_UP"
	DeliveryOutForDelivery = "OUT_FOR_DELIVERY"
	DeliveryDelivered      = "DELIVERED"
)

var (
	ErrNotFound            = db.ErrNotFound
	ErrMedicineNotFound    = fmt.Errorf("medicine %w", db.ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("order %w", db.ErrNotFound)
	ErrDeliveryManNotFound = fmt.Errorf("delivery man %w", db.ErrNotFound)
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("order is not assigned to this delivery man")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrWorkerUnavailable   = identity.ErrWorkerUnavailable
)

type Medicine struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Price       float64   `db:"price" json:"price"`
	Stock       int       `db:"stock" json:"stock"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MedicineRequest creates a medicine, or patches one when fields are nil.
type MedicineRequest struct {
	Name        *string  `json:"name"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	Description *string  `json:"description"`
}

type Order struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	UserID          uuid.UUID         `db:"user_id" json:"user_id"`
	Total           float64           `db:"total" json:"total"`
	DeliveryAddress *string           `db:"delivery_address" json:"delivery_address,omitempty"`
	Status          string            `db:"status" json:"status"`
	DeliveryManID   *uuid.UUID        `db:"delivery_man_id" json:"delivery_man_id,omitempty"`
	DeliveryStatus  *string           `db:"delivery_status" json:"delivery_status,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
	Items           []OrderItem       `db:"-" json:"items"`
	Customer        *identity.Summary `db:"-" json:"customer,omitempty"`
	DeliveryMan     *identity.Summary `db:"-" json:"delivery_man,omitempty"`
}

func (o *Order) deliveryStatus() string {
	if o.DeliveryStatus == nil {
		return ""
	}
	return *o.DeliveryStatus
}

// OrderItem snapshots the medicine name and price at order time.
type OrderItem struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OrderID      uuid.UUID  `db:"order_id" json:"order_id"`
	MedicineID   *uuid.UUID `db:"medicine_id" json:"medicine_id,omitempty"`
	MedicineName string     `db:"medicine_name" json:"medicine_name"`
	Quantity     int        `db:"quantity" json:"quantity"`
	UnitPrice    float64    `db:"unit_price" json:"unit_price"`
}

type OrderLine struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items           []OrderLine `json:"items"`
	DeliveryAddress *string     `json:"delivery_address"`
}

type AssignRequest struct {
	DeliveryManID string `json:"delivery_man_id"`
}

type DeliveryStatusRequest struct {
	DeliveryStatus string `json:"delivery_status"`
}

// roundCents rounds an amount to two decimals.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
