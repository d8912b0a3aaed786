package pharmacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/db"
)

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medCols = `id, name, price, stock, description, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	if err := row.Scan(&m.ID, &m.Name, &m.Price, &m.Stock, &m.Description, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, db.NotFound(err)
	}
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine (id, name, price, stock, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Price, m.Stock, m.Description,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medicine WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET name = $2, price = $3, stock = $4, description = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.Price, m.Stock, m.Description,
	).Scan(&m.UpdatedAt)
	return db.NotFound(err)
}

func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicine WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medCols+` FROM medicine ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM medicine WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository { return &orderRepoPG{pool: pool} }

func (r *orderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const orderCols = `o.id, o.user_id, o.total, o.delivery_address, o.status, o.delivery_man_id,
	o.delivery_status, o.created_at, o.updated_at`

func scanOrder(row pgx.Row, extra ...interface{}) (*Order, error) {
	var o Order
	dest := append([]interface{}{&o.ID, &o.UserID, &o.Total, &o.DeliveryAddress, &o.Status,
		&o.DeliveryManID, &o.DeliveryStatus, &o.CreatedAt, &o.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, db.NotFound(err)
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine_order (id, user_id, total, delivery_address, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Total, o.DeliveryAddress, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.ID = uuid.New()
		it.OrderID = o.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO order_item (id, order_id, medicine_id, medicine_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, it.OrderID, it.MedicineID, it.MedicineName, it.Quantity, it.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM medicine_order o WHERE o.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM medicine_order o WHERE o.id = $1 FOR UPDATE`, id))
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, o *Order) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine_order SET status = $2, delivery_man_id = $3, delivery_status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Status, o.DeliveryManID, o.DeliveryStatus,
	).Scan(&o.UpdatedAt)
	return db.NotFound(err)
}

// loadItems fills Items for every order with a single query.
func (r *orderRepoPG) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[uuid.UUID]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID.String()
		o.Items = []OrderItem{}
		byID[o.ID] = o
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, medicine_id, medicine_name, quantity, unit_price
		FROM order_item WHERE order_id = ANY($1::uuid[])
		ORDER BY medicine_name, id`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MedicineID, &it.MedicineName, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func person(id *uuid.UUID, name, phone *string) *identity.Summary {
	if id == nil || name == nil {
		return nil
	}
	return &identity.Summary{ID: *id, Name: *name, Phone: phone}
}

func (r *orderRepoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine_order o WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderCols+`, u.name, u.phone, d.name, d.phone
		FROM medicine_order o
		LEFT JOIN app_user u ON u.id = o.user_id
		LEFT JOIN app_user d ON d.id = o.delivery_man_id
		WHERE `+where+`
		ORDER BY o.created_at DESC, o.id
		LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var items []*Order
	for rows.Next() {
		var custName, custPhone, dmName, dmPhone *string
		o, err := scanOrder(rows, &custName, &custPhone, &dmName, &dmPhone)
		if err != nil {
			return nil, 0, err
		}
		o.Customer = person(&o.UserID, custName, custPhone)
		o.DeliveryMan = person(o.DeliveryManID, dmName, dmPhone)
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()
	if err := r.loadItems(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *orderRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	return r.list(ctx, `($1::text = '' OR o.status = $1::text)`, status, limit, offset)
}

func (r *orderRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return r.list(ctx, `o.user_id = $1`, userID, limit, offset)
}

func (r *orderRepoPG) ListByDeliveryMan(ctx context.Context, deliveryManID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return r.list(ctx, `o.delivery_man_id = $1`, deliveryManID, limit, offset)
}

func (r *orderRepoPG) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine_order WHERE status = $1`, status).Scan(&n)
	return n, err
}
