package healthcard

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsos/medsos/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cardCols = `patient_id, date_of_birth, blood_type, height, weight, allergies, conditions,
	medications, emergency_name, emergency_phone, emergency_relation, insurance_provider,
	insurance_number, updated_at`

func (r *repoPG) Get(ctx context.Context, patientID uuid.UUID) (*HealthCard, error) {
	var h HealthCard
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+cardCols+` FROM health_card WHERE patient_id = $1`, patientID).Scan(
		&h.PatientID, &h.DateOfBirth, &h.BloodType, &h.Height, &h.Weight, &h.Allergies, &h.Conditions,
		&h.Medications, &h.EmergencyName, &h.EmergencyPhone, &h.EmergencyRelation, &h.InsuranceProvider,
		&h.InsuranceNumber, &h.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &h, nil
}

func (r *repoPG) Upsert(ctx context.Context, h *HealthCard) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO health_card (`+cardCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (patient_id) DO UPDATE SET
			date_of_birth = EXCLUDED.date_of_birth,
			blood_type = EXCLUDED.blood_type,
			height = EXCLUDED.height,
			weight = EXCLUDED.weight,
			allergies = EXCLUDED.allergies,
			conditions = EXCLUDED.conditions,
			medications = EXCLUDED.medications,
			emergency_name = EXCLUDED.emergency_name,
			emergency_phone = EXCLUDED.emergency_phone,
			emergency_relation = EXCLUDED.emergency_relation,
			insurance_provider = EXCLUDED.insurance_provider,
			insurance_number = EXCLUDED.insurance_number,
			updated_at = NOW()
		RETURNING updated_at`,
		h.PatientID, h.DateOfBirth, h.BloodType, h.Height, h.Weight, h.Allergies, h.Conditions,
		h.Medications, h.EmergencyName, h.EmergencyPhone, h.EmergencyRelation, h.InsuranceProvider,
		h.InsuranceNumber,
	).Scan(&h.UpdatedAt)
}
