package pharmacy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/auth"
	"github.com/medsos/medsos/internal/platform/db"
	"github.com/medsos/medsos/internal/platform/websocket"
)

const resourceType = "Order"

// StatusRecorder counts status changes. metrics.Metrics satisfies it.
type StatusRecorder interface {
	RecordStatusChange(resource, status string)
}

type Service struct {
	medicines MedicineRepository
	orders    OrderRepository
	workers   WorkerDirectory
	tx        db.TxRunner
	publisher websocket.EventPublisher
	recorder  StatusRecorder
	logger    zerolog.Logger
}

func NewService(medicines MedicineRepository, orders OrderRepository, workers WorkerDirectory, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		medicines: medicines,
		orders:    orders,
		workers:   workers,
		tx:        tx,
		logger:    logger.With().Str("domain", "pharmacy").Logger(),
	}
}

// SetPublisher enables realtime events for order changes.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.publisher = p
}

func (s *Service) SetRecorder(r StatusRecorder) {
	s.recorder = r
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) changed(ctx context.Context, o *Order, eventType string) {
	if s.recorder != nil {
		s.recorder.RecordStatusChange("order", o.Status)
	}
	id := o.ID.String()
	topics := []string{websocket.TopicOrders, websocket.OrderTopic(id)}
	if o.DeliveryManID != nil {
		topics = append(topics, websocket.DeliveryTopic(o.DeliveryManID.String()))
	}
	data := map[string]interface{}{
		"id":              o.ID,
		"status":          o.Status,
		"delivery_status": o.DeliveryStatus,
	}
	websocket.Notify(ctx, s.publisher, s.logger, eventType, resourceType, id, data, topics...)
}

// -- Medicines --

func (s *Service) ListMedicines(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.List(ctx, limit, offset)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrMedicineNotFound
	}
	return m, err
}

func applyMedicine(m *Medicine, req MedicineRequest) error {
	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		m.Price = roundCents(*req.Price)
	}
	if req.Stock != nil {
		m.Stock = *req.Stock
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" {
			m.Description = nil
		} else {
			m.Description = &d
		}
	}
	switch {
	case m.Name == "":
		return invalid("name is required")
	case m.Price <= 0:
		return invalid("price must be greater than zero")
	case m.Stock < 0:
		return invalid("stock cannot be negative")
	}
	return nil
}

func (s *Service) CreateMedicine(ctx context.Context, req MedicineRequest) (*Medicine, error) {
	m := &Medicine{}
	if err := applyMedicine(m, req); err != nil {
		return nil, err
	}
	if err := s.medicines.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create medicine: %w", err)
	}
	s.logger.Info().Str("medicine_id", m.ID.String()).Str("name", m.Name).Msg("medicine added")
	return m, nil
}

// UpdateMedicine applies the fields present in req.
func (s *Service) UpdateMedicine(ctx context.Context, id uuid.UUID, req MedicineRequest) (*Medicine, error) {
	m, err := s.GetMedicine(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyMedicine(m, req); err != nil {
		return nil, err
	}
	if err := s.medicines.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMedicine(ctx context.Context, id uuid.UUID) error {
	err := s.medicines.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrMedicineNotFound
	}
	return err
}

// -- Orders --

// mergeLines validates the requested lines and folds repeated medicines
// together. Lines come back sorted by medicine id so concurrent orders
// lock rows in the same order.
func mergeLines(lines []OrderLine) ([]uuid.UUID, map[uuid.UUID]int, error) {
	if len(lines) == 0 {
		return nil, nil, invalid("order has no items")
	}
	qty := make(map[uuid.UUID]int, len(lines))
	var ids []uuid.UUID
	for _, l := range lines {
		id, err := uuid.Parse(l.MedicineID)
		if err != nil {
			return nil, nil, invalid("invalid medicine_id %q", l.MedicineID)
		}
		if l.Quantity <= 0 {
			return nil, nil, invalid("quantity must be greater than zero")
		}
		if _, seen := qty[id]; !seen {
			ids = append(ids, id)
		}
		qty[id] += l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids, qty, nil
}

// PlaceOrder prices the order from current medicine prices and takes the
// stock. Any missing medicine or short stock fails the whole order.
func (s *Service) PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*Order, error) {
	ids, qty, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}
	o := &Order{UserID: userID, Status: StatusPending}
	if req.DeliveryAddress != nil {
		if addr := strings.TrimSpace(*req.DeliveryAddress); addr != "" {
			o.DeliveryAddress = &addr
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var total float64
		items := make([]OrderItem, 0, len(ids))
		for _, id := range ids {
			n := qty[id]
			if err := s.medicines.DecrementStock(ctx, id, n); err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrMedicineNotFound
				}
				if errors.Is(err, ErrInsufficientStock) {
					return fmt.Errorf("%w for medicine %s", ErrInsufficientStock, id)
				}
				return err
			}
			m, err := s.medicines.GetByID(ctx, id)
			if err != nil {
				return err
			}
			medID := id
			items = append(items, OrderItem{
				MedicineID:   &medID,
				MedicineName: m.Name,
				Quantity:     n,
				UnitPrice:    m.Price,
			})
			total += m.Price * float64(n)
		}
		o.Items = items
		o.Total = roundCents(total)
		return s.orders.Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", o.ID.String()).Float64("total", o.Total).Msg("order placed")
	s.changed(ctx, o, websocket.EventCreated)
	return o, nil
}

// GetOrder returns an order. Patients only see their own orders and
// delivery men the orders assigned to them.
func (s *Service) GetOrder(ctx context.Context, id, userID uuid.UUID, role string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	switch role {
	case auth.RoleAdmin:
	case auth.RoleDeliveryMan:
		if o.DeliveryManID == nil || *o.DeliveryManID != userID {
			return nil, ErrOrderNotFound
		}
	default:
		if o.UserID != userID {
			return nil, ErrOrderNotFound
		}
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && !ValidOrderStatus(status) {
		return nil, 0, invalid("unknown order status %q", status)
	}
	return s.orders.List(ctx, status, limit, offset)
}

func (s *Service) ListUserOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListDeliveryOrders(ctx context.Context, deliveryManID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.orders.ListByDeliveryMan(ctx, deliveryManID, limit, offset)
}

func (s *Service) lockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetForUpdate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func transitionError(kind, from, to string) error {
	if from == "" {
		from = "unset"
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, from, to)
}

// AssignDeliveryMan hands a PENDING order to an available delivery man.
// The order update and the reservation commit together.
func (s *Service) AssignDeliveryMan(ctx context.Context, orderID, deliveryManID uuid.UUID) (*Order, error) {
	var order *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransitionOrder(o.Status, StatusAssigned) {
			return transitionError("order", o.Status, StatusAssigned)
		}
		if err := s.workers.Reserve(ctx, deliveryManID, auth.RoleDeliveryMan); err != nil {
			switch {
			case errors.Is(err, identity.ErrNotFound):
				return ErrDeliveryManNotFound
			case errors.Is(err, identity.ErrNotWorker):
				return invalid("user is not a delivery man")
			}
			return err
		}
		assigned := DeliveryAssigned
		o.Status = StatusAssigned
		o.DeliveryManID = &deliveryManID
		o.DeliveryStatus = &assigned
		if err := s.orders.UpdateStatus(ctx, o); err != nil {
			return err
		}
		if u, err := s.workers.GetByID(ctx, deliveryManID); err == nil {
			o.DeliveryMan = u.Summary()
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", orderID.String()).Str("delivery_man_id", deliveryManID.String()).Msg("delivery assigned")
	s.changed(ctx, order, websocket.EventAssigned)
	return order, nil
}

// UpdateDeliveryStatus moves the delivery one step forward. DELIVERED
// closes the order and frees the delivery man in the same transaction.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, orderID, deliveryManID uuid.UUID, next string) (*Order, error) {
	next = strings.ToUpper(strings.TrimSpace(next))
	if !ValidDeliveryStatus(next) {
		return nil, invalid("unknown delivery status %q", next)
	}

	var order *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.DeliveryManID == nil || *o.DeliveryManID != deliveryManID {
			return ErrForbidden
		}
		if o.Status != StatusAssigned {
			return transitionError("order", o.Status, next)
		}
		if !CanTransitionDelivery(o.deliveryStatus(), next) {
			return transitionError("delivery", o.deliveryStatus(), next)
		}
		o.DeliveryStatus = &next
		if next == DeliveryDelivered {
			o.Status = StatusDelivered
			if err := s.workers.Release(ctx, deliveryManID); err != nil {
				return fmt.Errorf("release delivery man: %w", err)
			}
		}
		if err := s.orders.UpdateStatus(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, order, websocket.EventStatusChanged)
	return order, nil
}

// CountPending returns the number of orders waiting for a delivery man.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.orders.CountByStatus(ctx, StatusPending)
}
