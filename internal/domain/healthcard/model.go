package healthcard

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/platform/db"
)

var (
	ErrNotFound        = db.ErrNotFound
	ErrInvalidInput    = errors.New("invalid input")
	ErrPatientNotFound = fmt.Errorf("patient %w", db.ErrNotFound)
)

// HealthCard maps to health_card. Every medical field is optional free text.
type HealthCard struct {
	PatientID         uuid.UUID `db:"patient_id" json:"patient_id"`
	DateOfBirth       *string   `db:"date_of_birth" json:"date_of_birth"`
	BloodType         *string   `db:"blood_type" json:"blood_type"`
	Height            *string   `db:"height" json:"height"`
	Weight            *string   `db:"weight" json:"weight"`
	Allergies         *string   `db:"allergies" json:"allergies"`
	Conditions        *string   `db:"conditions" json:"conditions"`
	Medications       *string   `db:"medications" json:"medications"`
	EmergencyName     *string   `db:"emergency_name" json:"emergency_name"`
	EmergencyPhone    *string   `db:"emergency_phone" json:"emergency_phone"`
	EmergencyRelation *string   `db:"emergency_relation" json:"emergency_relation"`
	InsuranceProvider *string   `db:"insurance_provider" json:"insurance_provider"`
	InsuranceNumber   *string   `db:"insurance_number" json:"insurance_number"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

func ValidBloodType(s string) bool {
	return bloodTypes[s]
}

// fields lists the text fields in column order.
func (h *HealthCard) fields() []**string {
	return []**string{
		&h.DateOfBirth, &h.BloodType, &h.Height, &h.Weight, &h.Allergies, &h.Conditions,
		&h.Medications, &h.EmergencyName, &h.EmergencyPhone, &h.EmergencyRelation,
		&h.InsuranceProvider, &h.InsuranceNumber,
	}
}
