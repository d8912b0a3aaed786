package pharmacy

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/auth"
	"github.com/medsos/medsos/internal/platform/websocket"
)

// -- Mock Repositories --

type mockMedicineRepo struct {
	meds map[uuid.UUID]*Medicine
}

func newMockMedicineRepo() *mockMedicineRepo {
	return &mockMedicineRepo{meds: make(map[uuid.UUID]*Medicine)}
}

func (m *mockMedicineRepo) Create(_ context.Context, med *Medicine) error {
	med.ID = uuid.New()
	med.CreatedAt = time.Now()
	med.UpdatedAt = med.CreatedAt
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockMedicineRepo) GetByID(_ context.Context, id uuid.UUID) (*Medicine, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *med
	return &cp, nil
}

func (m *mockMedicineRepo) Update(_ context.Context, med *Medicine) error {
	if _, ok := m.meds[med.ID]; !ok {
		return ErrNotFound
	}
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockMedicineRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.meds[id]; !ok {
		return ErrNotFound
	}
	delete(m.meds, id)
	return nil
}

func (m *mockMedicineRepo) List(_ context.Context, limit, offset int) ([]*Medicine, int, error) {
	var result []*Medicine
	for _, med := range m.meds {
		result = append(result, med)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	total := len(result)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

func (m *mockMedicineRepo) DecrementStock(_ context.Context, id uuid.UUID, qty int) error {
	med, ok := m.meds[id]
	if !ok {
		return ErrNotFound
	}
	if med.Stock < qty {
		return ErrInsufficientStock
	}
	med.Stock -= qty
	return nil
}

type mockOrderRepo struct {
	orders map[uuid.UUID]*Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now().Add(time.Duration(len(m.orders)) * time.Second)
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		o.Items[i].ID = uuid.New()
		o.Items[i].OrderID = o.ID
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, o *Order) error {
	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = o.Status
	stored.DeliveryManID = o.DeliveryManID
	stored.DeliveryStatus = o.DeliveryStatus
	return nil
}

func (m *mockOrderRepo) filter(keep func(*Order) bool, limit, offset int) ([]*Order, int, error) {
	var result []*Order
	for _, o := range m.orders {
		if keep(o) {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := len(result)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

func (m *mockOrderRepo) List(_ context.Context, status string, limit, offset int) ([]*Order, int, error) {
	return m.filter(func(o *Order) bool { return status == "" || o.Status == status }, limit, offset)
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return m.filter(func(o *Order) bool { return o.UserID == userID }, limit, offset)
}

func (m *mockOrderRepo) ListByDeliveryMan(_ context.Context, id uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return m.filter(func(o *Order) bool { return o.DeliveryManID != nil && *o.DeliveryManID == id }, limit, offset)
}

func (m *mockOrderRepo) CountByStatus(_ context.Context, status string) (int, error) {
	n := 0
	for _, o := range m.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

type mockWorkers struct {
	users map[uuid.UUID]*identity.User
}

func (m *mockWorkers) add(name, role string, available bool) *identity.User {
	u := &identity.User{ID: uuid.New(), Name: name, Role: role, IsAvailable: available}
	m.users[u.ID] = u
	return u
}

func (m *mockWorkers) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockWorkers) Reserve(_ context.Context, id uuid.UUID, role string) error {
	u, ok := m.users[id]
	if !ok {
		return identity.ErrNotFound
	}
	if u.Role != role {
		return identity.ErrNotWorker
	}
	if !u.IsAvailable {
		return identity.ErrWorkerUnavailable
	}
	u.IsAvailable = false
	return nil
}

func (m *mockWorkers) Release(_ context.Context, id uuid.UUID) error {
	u, ok := m.users[id]
	if !ok {
		return identity.ErrNotFound
	}
	u.IsAvailable = true
	return nil
}

// snapshotTx restores medicine stock when fn fails, standing in for a
// database rollback.
type snapshotTx struct {
	meds *mockMedicineRepo
}

func (s snapshotTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := make(map[uuid.UUID]int, len(s.meds.meds))
	for id, m := range s.meds.meds {
		saved[id] = m.Stock
	}
	err := fn(ctx)
	if err != nil {
		for id, stock := range saved {
			s.meds.meds[id].Stock = stock
		}
	}
	return err
}

type capturePublisher struct {
	events []websocket.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	svc     *Service
	meds    *mockMedicineRepo
	orders  *mockOrderRepo
	workers *mockWorkers
	pub     *capturePublisher
}

func newFixture() *fixture {
	f := &fixture{
		meds:    newMockMedicineRepo(),
		orders:  newMockOrderRepo(),
		workers: &mockWorkers{users: make(map[uuid.UUID]*identity.User)},
		pub:     &capturePublisher{},
	}
	f.svc = NewService(f.meds, f.orders, f.workers, snapshotTx{meds: f.meds}, zerolog.Nop())
	f.svc.SetPublisher(f.pub)
	return f
}

func (f *fixture) medicine(t *testing.T, name string, price float64, stock int) *Medicine {
	t.Helper()
	m, err := f.svc.CreateMedicine(context.Background(), MedicineRequest{Name: &name, Price: &price, Stock: &stock})
	if err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	return m
}

func (f *fixture) order(t *testing.T, userID uuid.UUID, lines ...OrderLine) *Order {
	t.Helper()
	o, err := f.svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{Items: lines})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return o
}

func line(m *Medicine, qty int) OrderLine {
	return OrderLine{MedicineID: m.ID.String(), Quantity: qty}
}

func TestService_CreateMedicine_Validation(t *testing.T) {
	f := newFixture()
	name, blank := "Aspirin", " "
	zero, price := 0.0, 2.5
	neg := -1

	tests := []struct {
		name string
		req  MedicineRequest
	}{
		{"missing name", MedicineRequest{Price: &price}},
		{"blank name", MedicineRequest{Name: &blank, Price: &price}},
		{"missing price", MedicineRequest{Name: &name}},
		{"zero price", MedicineRequest{Name: &name, Price: &zero}},
		{"negative stock", MedicineRequest{Name: &name, Price: &price, Stock: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateMedicine(context.Background(), tt.req); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestService_MedicineCRUD(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.medicine(t, "Aspirin", 2.499, 10)
	if m.Price != 2.5 {
		t.Errorf("expected price rounded to cents, got %v", m.Price)
	}

	got, err := f.svc.GetMedicine(ctx, m.ID)
	if err != nil || got.Name != "Aspirin" || got.Stock != 10 {
		t.Fatalf("unexpected read %+v (%v)", got, err)
	}

	stock := 3
	desc := "pain relief"
	upd, err := f.svc.UpdateMedicine(ctx, m.ID, MedicineRequest{Stock: &stock, Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Stock != 3 || upd.Name != "Aspirin" || *upd.Description != "pain relief" {
		t.Errorf("expected a partial update, got %+v", upd)
	}

	if err := f.svc.DeleteMedicine(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetMedicine(ctx, m.ID); !errors.Is(err, ErrMedicineNotFound) {
		t.Errorf("expected ErrMedicineNotFound, got %v", err)
	}
	if err := f.svc.DeleteMedicine(ctx, m.ID); !errors.Is(err, ErrMedicineNotFound) {
		t.Errorf("expected ErrMedicineNotFound on second delete, got %v", err)
	}
}

func TestService_PlaceOrder(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	b := f.medicine(t, "Bandage", 1.2, 5)
	user := uuid.New()
	addr := " 1 Main St "

	o, err := f.svc.PlaceOrder(context.Background(), user, PlaceOrderRequest{
		Items:           []OrderLine{line(a, 2), line(b, 3), line(a, 1)},
		DeliveryAddress: &addr,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", o.Status)
	}
	if o.Total != 11.1 {
		t.Errorf("expected total 11.1, got %v", o.Total)
	}
	if len(o.Items) != 2 {
		t.Fatalf("expected repeated lines merged into 2 items, got %d", len(o.Items))
	}
	if *o.DeliveryAddress != "1 Main St" {
		t.Errorf("expected trimmed address, got %q", *o.DeliveryAddress)
	}
	if f.meds.meds[a.ID].Stock != 7 || f.meds.meds[b.ID].Stock != 2 {
		t.Errorf("expected stock 7/2, got %d/%d", f.meds.meds[a.ID].Stock, f.meds.meds[b.ID].Stock)
	}
	if len(f.pub.events) == 0 || f.pub.events[0].Topic != websocket.TopicOrders {
		t.Error("expected order created event on the orders topic")
	}
}

func TestService_PlaceOrder_InsufficientStock(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	b := f.medicine(t, "Bandage", 1.2, 1)

	_, err := f.svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items: []OrderLine{line(a, 2), line(b, 3)},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if f.meds.meds[a.ID].Stock != 10 || f.meds.meds[b.ID].Stock != 1 {
		t.Error("stock must be untouched when the order fails")
	}
	if len(f.orders.orders) != 0 {
		t.Error("no order should be stored")
	}
}

func TestService_PlaceOrder_Validation(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	ctx := context.Background()

	tests := []struct {
		name  string
		items []OrderLine
		want  error
	}{
		{"no items", nil, ErrInvalidInput},
		{"zero quantity", []OrderLine{line(a, 0)}, ErrInvalidInput},
		{"bad id", []OrderLine{{MedicineID: "x", Quantity: 1}}, ErrInvalidInput},
		{"unknown medicine", []OrderLine{{MedicineID: uuid.New().String(), Quantity: 1}}, ErrMedicineNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(ctx, uuid.New(), PlaceOrderRequest{Items: tt.items})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_AssignDeliveryMan(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	o := f.order(t, uuid.New(), line(a, 1))
	dm := f.workers.add("Cal", auth.RoleDeliveryMan, true)

	got, err := f.svc.AssignDeliveryMan(context.Background(), o.ID, dm.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := f.orders.orders[o.ID]
	if stored.Status != StatusAssigned || *stored.DeliveryStatus != DeliveryAssigned {
		t.Errorf("expected ASSIGNED/ASSIGNED, got %s/%v", stored.Status, stored.DeliveryStatus)
	}
	if f.workers.users[dm.ID].IsAvailable {
		t.Error("delivery man must be unavailable")
	}
	if got.DeliveryMan == nil || got.DeliveryMan.Name != "Cal" {
		t.Errorf("expected delivery man summary, got %+v", got.DeliveryMan)
	}
}

func TestService_AssignDeliveryMan_Rejections(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	o := f.order(t, uuid.New(), line(a, 1))
	busy := f.workers.add("Busy", auth.RoleDeliveryMan, false)
	driver := f.workers.add("Dan", auth.RoleDriver, true)
	ctx := context.Background()

	if _, err := f.svc.AssignDeliveryMan(ctx, o.ID, busy.ID); !errors.Is(err, ErrWorkerUnavailable) {
		t.Errorf("expected ErrWorkerUnavailable, got %v", err)
	}
	if _, err := f.svc.AssignDeliveryMan(ctx, o.ID, driver.ID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a driver, got %v", err)
	}
	if _, err := f.svc.AssignDeliveryMan(ctx, o.ID, uuid.New()); !errors.Is(err, ErrDeliveryManNotFound) {
		t.Errorf("expected ErrDeliveryManNotFound, got %v", err)
	}
	if _, err := f.svc.AssignDeliveryMan(ctx, uuid.New(), busy.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	stored := f.orders.orders[o.ID]
	if stored.Status != StatusPending || stored.DeliveryManID != nil {
		t.Error("order must be unchanged")
	}
	if !f.workers.users[driver.ID].IsAvailable {
		t.Error("driver must not be reserved")
	}

	free := f.workers.add("Cal", auth.RoleDeliveryMan, true)
	other := f.workers.add("Dee", auth.RoleDeliveryMan, true)
	if _, err := f.svc.AssignDeliveryMan(ctx, o.ID, free.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.AssignDeliveryMan(ctx, o.ID, other.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on reassignment, got %v", err)
	}
	if !f.workers.users[other.ID].IsAvailable {
		t.Error("second delivery man must stay available")
	}
}

func TestService_UpdateDeliveryStatus_FullJourney(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	o := f.order(t, uuid.New(), line(a, 1))
	dm := f.workers.add("Cal", auth.RoleDeliveryMan, true)
	ctx := context.Background()
	if _, err := f.svc.AssignDeliveryMan(ctx, o.ID, dm.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := f.svc.UpdateDeliveryStatus(ctx, o.ID, dm.ID, DeliveryDelivered); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected skipping steps to fail, got %v", err)
	}
	if _, err := f.svc.UpdateDeliveryStatus(ctx, o.ID, uuid.New(), DeliveryPickedUp); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for another delivery man, got %v", err)
	}

	for _, next := range []string{"picked_up", DeliveryOutForDelivery} {
		got, err := f.svc.UpdateDeliveryStatus(ctx, o.ID, dm.ID, next)
		if err != nil {
			t.Fatalf("%s: %v", next, err)
		}
		if got.Status != StatusAssigned {
			t.Errorf("order must stay ASSIGNED, got %s", got.Status)
		}
	}

	got, err := f.svc.UpdateDeliveryStatus(ctx, o.ID, dm.ID, DeliveryDelivered)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.Status != StatusDelivered || f.orders.orders[o.ID].Status != StatusDelivered {
		t.Error("expected order DELIVERED")
	}
	if !f.workers.users[dm.ID].IsAvailable {
		t.Error("delivery man must be free again")
	}
	if _, err := f.svc.UpdateDeliveryStatus(ctx, o.ID, dm.ID, DeliveryDelivered); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected delivered order to be final, got %v", err)
	}
}

func TestService_GetOrder_Visibility(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	owner := uuid.New()
	o := f.order(t, owner, line(a, 1))
	ctx := context.Background()

	if _, err := f.svc.GetOrder(ctx, o.ID, owner, auth.RolePatient); err != nil {
		t.Errorf("owner should read, got %v", err)
	}
	if _, err := f.svc.GetOrder(ctx, o.ID, uuid.New(), auth.RolePatient); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected not found for another patient, got %v", err)
	}
	if _, err := f.svc.GetOrder(ctx, o.ID, uuid.New(), auth.RoleDeliveryMan); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected not found for an unassigned delivery man, got %v", err)
	}
	if _, err := f.svc.GetOrder(ctx, o.ID, uuid.New(), auth.RoleAdmin); err != nil {
		t.Errorf("admin should read, got %v", err)
	}
}

func TestService_OrderListsAndCounts(t *testing.T) {
	f := newFixture()
	a := f.medicine(t, "Aspirin", 2.5, 10)
	user := uuid.New()
	f.order(t, user, line(a, 1))
	f.order(t, user, line(a, 1))
	f.order(t, uuid.New(), line(a, 1))
	ctx := context.Background()

	if _, total, _ := f.svc.ListUserOrders(ctx, user, 10, 0); total != 2 {
		t.Errorf("expected 2 user orders, got %d", total)
	}
	if n, _ := f.svc.CountPending(ctx); n != 3 {
		t.Errorf("expected 3 pending, got %d", n)
	}
	if _, _, err := f.svc.ListOrders(ctx, "LOST", 10, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	if !CanTransitionOrder(StatusPending, StatusAssigned) || CanTransitionOrder(StatusPending, StatusDelivered) {
		t.Error("unexpected order transitions from PENDING")
	}
	if CanTransitionOrder(StatusDelivered, StatusPending) {
		t.Error("DELIVERED is final")
	}
	path := []string{"", DeliveryAssigned, DeliveryPickedUp, DeliveryOutForDelivery, DeliveryDelivered}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransitionDelivery(path[i], path[i+1]) {
			t.Errorf("expected %q -> %q allowed", path[i], path[i+1])
		}
	}
	if CanTransitionDelivery(DeliveryPickedUp, DeliveryAssigned) {
		t.Error("deliveries cannot go back")
	}
}
