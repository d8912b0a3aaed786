package scheduling

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
)

// -- Mock Repositories --

type mockAppointmentRepo struct {
	appts map[uuid.UUID]*Appointment
	users *mockUsers
}

func newMockAppointmentRepo(users *mockUsers) *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment), users: users}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().Add(time.Duration(len(m.appts)) * time.Second)
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) page(keep func(*Appointment) bool, limit, offset int) ([]*Appointment, int) {
	var result []*Appointment
	for _, a := range m.appts {
		if keep(a) {
			cp := *a
			result = append(result, &cp)
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
	return result[offset:end], total
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	items, total := m.page(func(a *Appointment) bool { return a.PatientID == patientID }, limit, offset)
	for _, a := range items {
		if a.DoctorID != nil {
			if u, ok := m.users.users[*a.DoctorID]; ok {
				a.Doctor = u.Summary()
			}
		}
	}
	return items, total, nil
}

func (m *mockAppointmentRepo) List(_ context.Context, limit, offset int) ([]*Appointment, int, error) {
	items, total := m.page(func(*Appointment) bool { return true }, limit, offset)
	for _, a := range items {
		if u, ok := m.users.users[a.PatientID]; ok {
			a.Patient = u.Summary()
		}
	}
	return items, total, nil
}

type mockUsers struct {
	users map[uuid.UUID]*identity.User
}

func (m *mockUsers) add(name, role string) *identity.User {
	u := &identity.User{ID: uuid.New(), Name: name, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *mockUsers) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

type countRecorder map[string]int

func (r countRecorder) RecordStatusChange(resource, status string) {
	r[resource+"/"+status]++
}

func newTestService() (*Service, *mockAppointmentRepo, *mockUsers) {
	users := &mockUsers{users: make(map[uuid.UUID]*identity.User)}
	repo := newMockAppointmentRepo(users)
	return NewService(repo, users, zerolog.Nop()), repo, users
}

func book(t *testing.T, svc *Service, patientID uuid.UUID, doctorID *uuid.UUID) *Appointment {
	t.Helper()
	req := BookRequest{Reason: "headache", Date: "2026-11-02 10:00"}
	if doctorID != nil {
		s := doctorID.String()
		req.DoctorID = &s
	}
	a, err := svc.BookAppointment(context.Background(), patientID, req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}

func TestService_BookAppointment(t *testing.T) {
	svc, repo, users := newTestService()
	rec := countRecorder{}
	svc.SetRecorder(rec)
	patient := users.add("Pat", auth.RolePatient)
	doc := users.add("Dr Who", auth.RoleDoctor)

	a := book(t, svc, patient.ID, &doc.ID)
	if a.Status != StatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", a.Status)
	}
	stored := repo.appts[a.ID]
	if stored.DoctorID == nil || *stored.DoctorID != doc.ID {
		t.Error("expected doctor to be recorded")
	}
	if stored.Reason != "headache" || stored.Date != "2026-11-02 10:00" || stored.Prescription != nil {
		t.Errorf("unexpected stored appointment %+v", stored)
	}
	if rec["appointment/CONFIRMED"] != 1 {
		t.Errorf("expected recorded booking, got %v", rec)
	}
}

func TestService_BookAppointment_Validation(t *testing.T) {
	svc, _, users := newTestService()
	patient := users.add("Pat", auth.RolePatient)
	driver := users.add("Dan", auth.RoleDriver)
	ctx := context.Background()
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"missing reason", BookRequest{Date: "tomorrow"}, ErrInvalidInput},
		{"missing date", BookRequest{Reason: "cough"}, ErrInvalidInput},
		{"bad doctor id", BookRequest{Reason: "cough", Date: "tomorrow", DoctorID: str("nope")}, ErrInvalidInput},
		{"unknown doctor", BookRequest{Reason: "cough", Date: "tomorrow", DoctorID: str(uuid.New().String())}, ErrDoctorNotFound},
		{"not a doctor", BookRequest{Reason: "cough", Date: "tomorrow", DoctorID: str(driver.ID.String())}, ErrDoctorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BookAppointment(ctx, patient.ID, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_BookAppointment_BlankDoctorIgnored(t *testing.T) {
	svc, _, users := newTestService()
	patient := users.add("Pat", auth.RolePatient)
	blank := ""
	a, err := svc.BookAppointment(context.Background(), patient.ID, BookRequest{Reason: "x", Date: "y", DoctorID: &blank})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.DoctorID != nil {
		t.Error("blank doctor_id must leave doctor unset")
	}
}

func TestService_SubmitPrescription(t *testing.T) {
	svc, repo, users := newTestService()
	patient := users.add("Pat", auth.RolePatient)
	doc := users.add("Dr Who", auth.RoleDoctor)
	a := book(t, svc, patient.ID, nil)
	ctx := context.Background()

	got, err := svc.SubmitPrescription(ctx, a.ID, doc.ID, auth.RoleDoctor, " rest and fluids ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	stored := repo.appts[a.ID]
	if stored.Prescription == nil || *stored.Prescription != "rest and fluids" {
		t.Errorf("unexpected prescription %v", stored.Prescription)
	}
	if stored.DoctorID == nil || *stored.DoctorID != doc.ID {
		t.Error("submitting doctor must be recorded")
	}

	// Amending keeps the appointment completed.
	if _, err := svc.SubmitPrescription(ctx, a.ID, doc.ID, auth.RoleDoctor, "amended"); err != nil {
		t.Fatalf("amend: %v", err)
	}
	if *repo.appts[a.ID].Prescription != "amended" {
		t.Error("expected amended prescription")
	}
}

func TestService_SubmitPrescription_KeepsBookedDoctor(t *testing.T) {
	svc, repo, users := newTestService()
	patient := users.add("Pat", auth.RolePatient)
	booked := users.add("Dr A", auth.RoleDoctor)
	other := users.add("Dr B", auth.RoleDoctor)
	a := book(t, svc, patient.ID, &booked.ID)

	if _, err := svc.SubmitPrescription(context.Background(), a.ID, other.ID, auth.RoleDoctor, "rx"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *repo.appts[a.ID].DoctorID != booked.ID {
		t.Error("booked doctor must not be replaced")
	}
}

func TestService_SubmitPrescription_Errors(t *testing.T) {
	svc, repo, users := newTestService()
	patient := users.add("Pat", auth.RolePatient)
	a := book(t, svc, patient.ID, nil)
	ctx := context.Background()

	if _, err := svc.SubmitPrescription(ctx, a.ID, uuid.New(), auth.RoleDoctor, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.SubmitPrescription(ctx, uuid.New(), uuid.New(), auth.RoleDoctor, "rx"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}

	repo.appts[a.ID].Status = "CANCELLED"
	if _, err := svc.SubmitPrescription(ctx, a.ID, uuid.New(), auth.RoleDoctor, "rx"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_ListAppointments(t *testing.T) {
	svc, _, users := newTestService()
	pat := users.add("Pat", auth.RolePatient)
	other := users.add("Ola", auth.RolePatient)
	doc := users.add("Dr Who", auth.RoleDoctor)
	book(t, svc, pat.ID, &doc.ID)
	book(t, svc, other.ID, nil)
	ctx := context.Background()

	mine, total, err := svc.ListAppointments(ctx, pat.ID, auth.RolePatient, 10, 0)
	if err != nil || total != 1 {
		t.Fatalf("expected 1 own appointment, got %d (%v)", total, err)
	}
	if mine[0].Doctor == nil || mine[0].Doctor.Name != "Dr Who" || mine[0].Patient != nil {
		t.Errorf("patients see the doctor, got %+v", mine[0])
	}

	all, total, err := svc.ListAppointments(ctx, doc.ID, auth.RoleDoctor, 10, 0)
	if err != nil || total != 2 {
		t.Fatalf("expected 2 appointments, got %d (%v)", total, err)
	}
	for _, a := range all {
		if a.Patient == nil {
			t.Error("doctors see the patient")
		}
	}
}

func TestService_GetAppointment_Ownership(t *testing.T) {
	svc, _, users := newTestService()
	pat := users.add("Pat", auth.RolePatient)
	a := book(t, svc, pat.ID, nil)
	ctx := context.Background()

	if _, err := svc.GetAppointment(ctx, a.ID, pat.ID, auth.RolePatient); err != nil {
		t.Errorf("owner should read, got %v", err)
	}
	if _, err := svc.GetAppointment(ctx, a.ID, uuid.New(), auth.RolePatient); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found for other patient, got %v", err)
	}
	if _, err := svc.GetAppointment(ctx, a.ID, uuid.New(), auth.RoleDoctor); err != nil {
		t.Errorf("doctor should read, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusConfirmed, StatusCompleted) {
		t.Error("CONFIRMED -> COMPLETED must be allowed")
	}
	if !CanTransition(StatusCompleted, StatusCompleted) {
		t.Error("COMPLETED -> COMPLETED must be allowed for amendments")
	}
	if CanTransition(StatusCompleted, StatusConfirmed) {
		t.Error("COMPLETED -> CONFIRMED must be rejected")
	}
}
