package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/platform/auth"
)

// StatusRecorder counts status changes. metrics.Metrics satisfies it.
type StatusRecorder interface {
	RecordStatusChange(resource, status string)
}

type Service struct {
	appts    AppointmentRepository
	users    UserLookup
	recorder StatusRecorder
	logger   zerolog.Logger
}

func NewService(appts AppointmentRepository, users UserLookup, logger zerolog.Logger) *Service {
	return &Service{
		appts:  appts,
		users:  users,
		logger: logger.With().Str("domain", "scheduling").Logger(),
	}
}

func (s *Service) SetRecorder(r StatusRecorder) {
	s.recorder = r
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) record(status string) {
	if s.recorder != nil {
		s.recorder.RecordStatusChange("appointment", status)
	}
}

func (s *Service) doctor(ctx context.Context, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalid("invalid doctor_id")
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	return &id, nil
}

// BookAppointment creates a CONFIRMED appointment for the patient.
func (s *Service) BookAppointment(ctx context.Context, patientID uuid.UUID, req BookRequest) (*Appointment, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, invalid("reason is required")
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		return nil, invalid("date is required")
	}
	a := &Appointment{
		PatientID: patientID,
		Reason:    reason,
		Date:      date,
		Status:    StatusConfirmed,
	}
	if req.DoctorID != nil {
		id, err := s.doctor(ctx, *req.DoctorID)
		if err != nil {
			return nil, err
		}
		a.DoctorID = id
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	s.record(a.Status)
	s.logger.Info().Str("appointment_id", a.ID.String()).Msg("appointment booked")
	return a, nil
}

// GetAppointment returns an appointment. Patients only see their own.
func (s *Service) GetAppointment(ctx context.Context, id, userID uuid.UUID, role string) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if role == auth.RolePatient && a.PatientID != userID {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

// ListAppointments returns the patient's own appointments with their
// doctor, or every appointment with its patient for doctors and admins.
func (s *Service) ListAppointments(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]*Appointment, int, error) {
	if role == auth.RolePatient {
		return s.appts.ListByPatient(ctx, userID, limit, offset)
	}
	return s.appts.List(ctx, limit, offset)
}

// SubmitPrescription writes the prescription and completes the appointment.
// A doctor submitting on an appointment without one becomes its doctor.
func (s *Service) SubmitPrescription(ctx context.Context, id, userID uuid.UUID, role, text string) (*Appointment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("prescription is required")
	}
	a, err := s.appts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCompleted) {
		return nil, fmt.Errorf("%w: appointment %s -> %s", ErrInvalidTransition, a.Status, StatusCompleted)
	}
	if a.DoctorID == nil && role == auth.RoleDoctor {
		a.DoctorID = &userID
	}
	a.Prescription = &text
	a.Status = StatusCompleted
	if err := s.appts.Update(ctx, a); err != nil {
		return nil, err
	}
	s.record(a.Status)
	s.logger.Info().Str("appointment_id", id.String()).Str("doctor_id", userID.String()).Msg("prescription submitted")
	return a, nil
}
