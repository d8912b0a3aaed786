package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsos/medsos/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, email, password_hash, role, phone, is_available,
	current_latitude, current_longitude, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.IsAvailable,
		&u.CurrentLatitude, &u.CurrentLongitude, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, name, email, password_hash, role, phone, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Phone, u.IsAvailable,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE email = $1`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE app_user SET name = $2, phone = $3, password_hash = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Name, u.Phone, u.PasswordHash,
	).Scan(&u.UpdatedAt)
	return db.NotFound(err)
}

func (r *userRepoPG) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM app_user WHERE ($1::text = '' OR role = $1::text)`, role,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+userCols+` FROM app_user
		WHERE ($1::text = '' OR role = $1::text)
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, role, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items, err := collectUsers(rows)
	return items, total, err
}

func (r *userRepoPG) ListAvailable(ctx context.Context, role string) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+userCols+` FROM app_user
		WHERE role = $1 AND is_available = TRUE
		ORDER BY name, id`, role)
	if err != nil {
		return nil, fmt.Errorf("list available users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]*User, error) {
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *userRepoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE app_user SET is_available = $2, updated_at = NOW() WHERE id = $1`, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAvailable puts a worker back on duty unless a dispatched call or an
// assigned order still holds them. Run it in a transaction: the row lock
// orders it against Reserve, and the job check then sees committed
// assignments.
func (r *userRepoPG) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	var locked uuid.UUID
	if err := q.QueryRow(ctx, `SELECT id FROM app_user WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return db.NotFound(err)
	}

	var busy bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM emergency_call WHERE driver_id = $1 AND status = 'DISPATCHED')
		    OR EXISTS (SELECT 1 FROM medicine_order WHERE delivery_man_id = $1 AND status = 'ASSIGNED')`,
		id).Scan(&busy)
	if err != nil {
		return fmt.Errorf("check active jobs: %w", err)
	}
	if busy {
		return ErrWorkerUnavailable
	}
	return r.SetAvailability(ctx, id, true)
}

func (r *userRepoPG) SetLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE app_user SET current_latitude = $2, current_longitude = $3, updated_at = NOW()
		WHERE id = $1`, id, lat, lng)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reserve flips an available worker to unavailable. The WHERE clause makes
// it a compare-and-set, so concurrent reservations of one worker cannot both
// succeed.
func (r *userRepoPG) Reserve(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE app_user SET is_available = FALSE, updated_at = NOW()
		WHERE id = $1 AND role = $2 AND is_available = TRUE`, id, role)
	if err != nil {
		return fmt.Errorf("reserve worker: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Role != role {
		return fmt.Errorf("%w: user has role %s", ErrNotWorker, u.Role)
	}
	return ErrWorkerUnavailable
}

// Release is unconditional: callers run it in the transaction that closes the
// job, before the job row leaves its active status.
func (r *userRepoPG) Release(ctx context.Context, id uuid.UUID) error {
	return r.SetAvailability(ctx, id, true)
}
