package emergency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/db"
)

type callRepoPG struct{ pool *pgxpool.Pool }

func NewCallRepoPG(pool *pgxpool.Pool) CallRepository { return &callRepoPG{pool: pool} }

func (r *callRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const callCols = `id, patient_id, latitude, longitude, status, driver_id, driver_status, created_at, updated_at`

func scanCall(row pgx.Row) (*EmergencyCall, error) {
	var c EmergencyCall
	err := row.Scan(&c.ID, &c.PatientID, &c.Latitude, &c.Longitude, &c.Status,
		&c.DriverID, &c.DriverStatus, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &c, nil
}

// listCols qualifies callCols and appends driver and patient summaries.
const listCols = `c.id, c.patient_id, c.latitude, c.longitude, c.status, c.driver_id, c.driver_status,
	c.created_at, c.updated_at, d.name, d.phone, p.name, p.phone`

const listFrom = ` FROM emergency_call c
	LEFT JOIN app_user d ON d.id = c.driver_id
	LEFT JOIN app_user p ON p.id = c.patient_id`

func scanCallWithPeople(row pgx.Row) (*EmergencyCall, error) {
	var c EmergencyCall
	var driverName, driverPhone, patientName, patientPhone *string
	err := row.Scan(&c.ID, &c.PatientID, &c.Latitude, &c.Longitude, &c.Status,
		&c.DriverID, &c.DriverStatus, &c.CreatedAt, &c.UpdatedAt,
		&driverName, &driverPhone, &patientName, &patientPhone)
	if err != nil {
		return nil, err
	}
	if c.DriverID != nil && driverName != nil {
		c.Driver = &identity.Summary{ID: *c.DriverID, Name: *driverName, Phone: driverPhone}
	}
	if c.PatientID != nil && patientName != nil {
		c.Patient = &identity.Summary{ID: *c.PatientID, Name: *patientName, Phone: patientPhone}
	}
	return &c, nil
}

func (r *callRepoPG) Create(ctx context.Context, c *EmergencyCall) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_call (id, patient_id, latitude, longitude, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.Latitude, c.Longitude, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *callRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCall, error) {
	return scanCall(r.conn(ctx).QueryRow(ctx, `SELECT `+callCols+` FROM emergency_call WHERE id = $1`, id))
}

func (r *callRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyCall, error) {
	return scanCall(r.conn(ctx).QueryRow(ctx, `SELECT `+callCols+` FROM emergency_call WHERE id = $1 FOR UPDATE`, id))
}

func (r *callRepoPG) UpdateStatus(ctx context.Context, c *EmergencyCall) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE emergency_call SET status = $2, driver_id = $3, driver_status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Status, c.DriverID, c.DriverStatus,
	).Scan(&c.UpdatedAt)
	return db.NotFound(err)
}

func (r *callRepoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*EmergencyCall, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_call c WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+listCols+listFrom+` WHERE `+where+`
		ORDER BY c.created_at DESC, c.id
		LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var items []*EmergencyCall
	for rows.Next() {
		c, err := scanCallWithPeople(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *callRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*EmergencyCall, int, error) {
	return r.list(ctx, `($1::text = '' OR c.status = $1::text)`, status, limit, offset)
}

func (r *callRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*EmergencyCall, int, error) {
	return r.list(ctx, `c.patient_id = $1`, patientID, limit, offset)
}

func (r *callRepoPG) ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*EmergencyCall, int, error) {
	return r.list(ctx, `c.driver_id = $1`, driverID, limit, offset)
}

func (r *callRepoPG) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_call WHERE status = $1`, status).Scan(&n)
	return n, err
}
