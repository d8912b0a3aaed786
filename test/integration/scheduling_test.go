//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/medsos/medsos/internal/domain/healthcard"
	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/domain/scheduling"
	"github.com/medsos/medsos/internal/platform/auth"
)

func TestAppointmentFlow(t *testing.T) {
	ctx := context.Background()
	svc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(globalDB.Pool),
		identity.NewUserRepoPG(globalDB.Pool),
		nop,
	)
	patient := createTestUser(t, ctx, auth.RolePatient, "Booking Patient")
	doctor := createTestUser(t, ctx, auth.RoleDoctor, "Dr. Booking")

	a, err := svc.BookAppointment(ctx, patient.ID, scheduling.BookRequest{
		Reason: "Persistent cough",
		Date:   "2026-11-02 09:30",
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	if a.Status != scheduling.StatusConfirmed || a.DoctorID != nil {
		t.Errorf("unexpected appointment: %+v", a)
	}

	if _, err := svc.BookAppointment(ctx, patient.ID, scheduling.BookRequest{
		Reason:   "Checkup",
		Date:     "2026-11-03",
		DoctorID: ptrStr(patient.ID.String()),
	}); !errors.Is(err, scheduling.ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound for a non-doctor, got %v", err)
	}

	done, err := svc.SubmitPrescription(ctx, a.ID, doctor.ID, auth.RoleDoctor, "Rest and fluids")
	if err != nil {
		t.Fatalf("SubmitPrescription: %v", err)
	}
	if done.Status != scheduling.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", done.Status)
	}

	list, total, err := svc.ListAppointments(ctx, patient.ID, auth.RolePatient, 10, 0)
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("expected 1 appointment, got %d", total)
	}
	if list[0].Doctor == nil || list[0].Doctor.ID != doctor.ID {
		t.Errorf("expected doctor summary, got %+v", list[0].Doctor)
	}
	if list[0].Prescription == nil || *list[0].Prescription != "Rest and fluids" {
		t.Errorf("expected prescription, got %v", list[0].Prescription)
	}

	stranger := createTestUser(t, ctx, auth.RolePatient, "Other Patient")
	if _, err := svc.GetAppointment(ctx, a.ID, stranger.ID, auth.RolePatient); !errors.Is(err, scheduling.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound for another patient, got %v", err)
	}
}

func TestHealthCardUpsert(t *testing.T) {
	ctx := context.Background()
	svc := healthcard.NewService(healthcard.NewRepoPG(globalDB.Pool), identity.NewUserRepoPG(globalDB.Pool), nop)
	patient := createTestUser(t, ctx, auth.RolePatient, "Card Patient")

	empty, err := svc.Get(ctx, patient.ID)
	if err != nil {
		t.Fatalf("Get empty: %v", err)
	}
	if empty.BloodType != nil {
		t.Errorf("expected empty card, got %+v", empty)
	}

	if _, err := svc.Save(ctx, patient.ID, healthcard.HealthCard{
		BloodType: ptrStr("o+"),
		Allergies: ptrStr("Penicillin"),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := svc.Save(ctx, patient.ID, healthcard.HealthCard{
		BloodType: ptrStr("AB-"),
		Allergies: ptrStr("  "),
	}); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	got, err := svc.Get(ctx, patient.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BloodType == nil || *got.BloodType != "AB-" {
		t.Errorf("expected AB-, got %v", got.BloodType)
	}
	if got.Allergies != nil {
		t.Errorf("expected allergies cleared, got %q", *got.Allergies)
	}

	if _, err := svc.Save(ctx, uuid.New(), healthcard.HealthCard{BloodType: ptrStr("A+")}); err == nil {
		t.Fatal("expected foreign key failure for unknown patient")
	}

	viewed, err := svc.GetForPatient(ctx, patient.ID)
	if err != nil {
		t.Fatalf("GetForPatient: %v", err)
	}
	if viewed.BloodType == nil || *viewed.BloodType != "AB-" {
		t.Errorf("expected AB- for the doctor view, got %v", viewed.BloodType)
	}
	driver := createTestUser(t, ctx, auth.RoleDriver, "Card Driver")
	for _, id := range []uuid.UUID{driver.ID, uuid.New()} {
		if _, err := svc.GetForPatient(ctx, id); !errors.Is(err, healthcard.ErrPatientNotFound) {
			t.Errorf("expected ErrPatientNotFound for %s, got %v", id, err)
		}
	}
}
