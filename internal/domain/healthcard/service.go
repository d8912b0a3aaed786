package healthcard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/platform/auth"
)

type Service struct {
	cards  Repository
	users  UserLookup
	logger zerolog.Logger
}

func NewService(cards Repository, users UserLookup, logger zerolog.Logger) *Service {
	return &Service{cards: cards, users: users, logger: logger.With().Str("domain", "healthcard").Logger()}
}

// Get returns the patient's card, or an empty card when none was saved.
func (s *Service) Get(ctx context.Context, patientID uuid.UUID) (*HealthCard, error) {
	h, err := s.cards.Get(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return &HealthCard{PatientID: patientID}, nil
	}
	return h, err
}

// GetForPatient is the doctor's view. Unknown ids and users that are not
// patients yield ErrPatientNotFound rather than an empty card.
func (s *Service) GetForPatient(ctx context.Context, patientID uuid.UUID) (*HealthCard, error) {
	u, err := s.users.GetByID(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RolePatient {
		return nil, ErrPatientNotFound
	}
	return s.Get(ctx, patientID)
}

// Save replaces the patient's card. Blank fields are stored as NULL.
func (s *Service) Save(ctx context.Context, patientID uuid.UUID, in HealthCard) (*HealthCard, error) {
	h := in
	h.PatientID = patientID
	for _, f := range h.fields() {
		if *f == nil {
			continue
		}
		v := strings.TrimSpace(**f)
		if v == "" {
			*f = nil
		} else {
			*f = &v
		}
	}
	if h.BloodType != nil {
		bt := strings.ToUpper(*h.BloodType)
		if !ValidBloodType(bt) {
			return nil, fmt.Errorf("%w: blood_type must be one of A+ A- B+ B- AB+ AB- O+ O-", ErrInvalidInput)
		}
		h.BloodType = &bt
	}
	if err := s.cards.Upsert(ctx, &h); err != nil {
		return nil, fmt.Errorf("save health card: %w", err)
	}
	s.logger.Debug().Str("patient_id", patientID.String()).Msg("health card saved")
	return &h, nil
}
