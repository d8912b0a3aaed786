package emergency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/domain/identity"
	"github.com/medsos/medsos/internal/platform/auth"
	"github.com/medsos/medsos/internal/platform/db"
	"github.com/medsos/medsos/internal/platform/websocket"
)

const resourceType = "EmergencyCall"

// StatusRecorder counts status changes. metrics.Metrics satisfies it.
type StatusRecorder interface {
	RecordStatusChange(resource, status string)
}

type Service struct {
	calls     CallRepository
	drivers   DriverDirectory
	tx        db.TxRunner
	publisher websocket.EventPublisher
	recorder  StatusRecorder
	logger    zerolog.Logger
}

func NewService(calls CallRepository, drivers DriverDirectory, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		calls:   calls,
		drivers: drivers,
		tx:      tx,
		logger:  logger.With().Str("domain", "emergency").Logger(),
	}
}

// SetPublisher enables realtime events for call changes.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.publisher = p
}

func (s *Service) SetRecorder(r StatusRecorder) {
	s.recorder = r
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func transitionError(kind, from, to string) error {
	if from == "" {
		from = "unset"
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, from, to)
}

func (s *Service) changed(ctx context.Context, c *EmergencyCall, eventType string) {
	if s.recorder != nil {
		s.recorder.RecordStatusChange("emergency_call", c.Status)
	}
	id := c.ID.String()
	topics := []string{websocket.TopicCalls, websocket.CallTopic(id)}
	if c.DriverID != nil {
		topics = append(topics, websocket.DriverTopic(c.DriverID.String()))
	}
	status := CallStatus{ID: c.ID, Status: c.Status, DriverStatus: c.DriverStatus}
	websocket.Notify(ctx, s.publisher, s.logger, eventType, resourceType, id, status, topics...)
}

func (s *Service) lockCall(ctx context.Context, id uuid.UUID) (*EmergencyCall, error) {
	c, err := s.calls.GetForUpdate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCallNotFound
	}
	return c, err
}

// TriggerSOS records a new PENDING call at the given position.
func (s *Service) TriggerSOS(ctx context.Context, patientID *uuid.UUID, lat, lng float64) (*EmergencyCall, error) {
	if !identity.ValidCoordinates(lat, lng) {
		return nil, invalid("coordinates out of range")
	}
	c := &EmergencyCall{
		PatientID: patientID,
		Latitude:  lat,
		Longitude: lng,
		Status:    StatusPending,
	}
	if err := s.calls.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	s.logger.Info().Str("call_id", c.ID.String()).Msg("sos triggered")
	s.changed(ctx, c, websocket.EventCreated)
	return c, nil
}

// CheckStatus returns the status of a call. Patients only see their own
// calls; anyone else gets ErrCallNotFound.
func (s *Service) CheckStatus(ctx context.Context, id, userID uuid.UUID, role string) (*CallStatus, error) {
	c, err := s.calls.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	if role != auth.RoleAdmin && (c.PatientID == nil || *c.PatientID != userID) {
		return nil, ErrCallNotFound
	}
	return &CallStatus{ID: c.ID, Status: c.Status, DriverStatus: c.DriverStatus}, nil
}

func (s *Service) ListCalls(ctx context.Context, status string, limit, offset int) ([]*EmergencyCall, int, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && status != StatusPending && status != StatusDispatched && status != StatusResolved {
		return nil, 0, invalid("unknown call status %q", status)
	}
	return s.calls.List(ctx, status, limit, offset)
}

func (s *Service) ListPatientCalls(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*EmergencyCall, int, error) {
	return s.calls.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListDriverCalls(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*EmergencyCall, int, error) {
	return s.calls.ListByDriver(ctx, driverID, limit, offset)
}

func reserveError(err error) error {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return ErrDriverNotFound
	case errors.Is(err, identity.ErrNotWorker):
		return invalid("user is not a driver")
	}
	return err
}

// AssignDriver dispatches a PENDING call to an available driver. The call
// update and the driver reservation commit together.
func (s *Service) AssignDriver(ctx context.Context, callID, driverID uuid.UUID) (*EmergencyCall, error) {
	var call *EmergencyCall
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCall(ctx, callID)
		if err != nil {
			return err
		}
		if !CanTransitionCall(c.Status, StatusDispatched) {
			return transitionError("call", c.Status, StatusDispatched)
		}
		if err := s.drivers.Reserve(ctx, driverID, auth.RoleDriver); err != nil {
			return reserveError(err)
		}
		assigned := DriverAssigned
		c.Status = StatusDispatched
		c.DriverID = &driverID
		c.DriverStatus = &assigned
		if err := s.calls.UpdateStatus(ctx, c); err != nil {
			return err
		}
		if d, err := s.drivers.GetByID(ctx, driverID); err == nil {
			c.Driver = d.Summary()
		}
		call = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("call_id", callID.String()).Str("driver_id", driverID.String()).Msg("driver dispatched")
	s.changed(ctx, call, websocket.EventAssigned)
	return call, nil
}

// UpdateDriverStatus moves the assigned driver's job one step forward.
// COMPLETED resolves the call and frees the driver in the same transaction.
func (s *Service) UpdateDriverStatus(ctx context.Context, callID, driverID uuid.UUID, next string) (*EmergencyCall, error) {
	next = strings.ToUpper(strings.TrimSpace(next))
	if !ValidDriverStatus(next) {
		return nil, invalid("unknown driver status %q", next)
	}

	var call *EmergencyCall
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCall(ctx, callID)
		if err != nil {
			return err
		}
		if c.DriverID == nil || *c.DriverID != driverID {
			return ErrForbidden
		}
		if c.Status != StatusDispatched {
			return transitionError("call", c.Status, next)
		}
		if !CanTransitionDriver(c.driverStatus(), next) {
			return transitionError("driver", c.driverStatus(), next)
		}
		c.DriverStatus = &next
		if next == DriverCompleted {
			c.Status = StatusResolved
			if err := s.drivers.Release(ctx, driverID); err != nil {
				return fmt.Errorf("release driver: %w", err)
			}
		}
		if err := s.calls.UpdateStatus(ctx, c); err != nil {
			return err
		}
		call = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, call, websocket.EventStatusChanged)
	return call, nil
}

// ResolveCall closes a call by hand. A PENDING call skips the driver
// states; a DISPATCHED call completes its job and releases the driver.
func (s *Service) ResolveCall(ctx context.Context, callID uuid.UUID) (*EmergencyCall, error) {
	var call *EmergencyCall
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCall(ctx, callID)
		if err != nil {
			return err
		}
		if !CanTransitionCall(c.Status, StatusResolved) {
			return transitionError("call", c.Status, StatusResolved)
		}
		if c.Status == StatusDispatched {
			completed := DriverCompleted
			c.DriverStatus = &completed
			if c.DriverID != nil {
				if err := s.drivers.Release(ctx, *c.DriverID); err != nil {
					return fmt.Errorf("release driver: %w", err)
				}
			}
		}
		c.Status = StatusResolved
		if err := s.calls.UpdateStatus(ctx, c); err != nil {
			return err
		}
		call = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("call_id", callID.String()).Msg("call resolved")
	s.changed(ctx, call, websocket.EventStatusChanged)
	return call, nil
}

// DriverSuggestions ranks available drivers by distance to the call.
// Drivers without a known location come last, by name.
func (s *Service) DriverSuggestions(ctx context.Context, callID uuid.UUID) ([]DriverSuggestion, error) {
	c, err := s.calls.GetByID(ctx, callID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	drivers, err := s.drivers.ListAvailable(ctx, auth.RoleDriver)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	out := make([]DriverSuggestion, 0, len(drivers))
	for _, d := range drivers {
		sg := DriverSuggestion{Driver: d.Summary()}
		if d.CurrentLatitude != nil && d.CurrentLongitude != nil {
			km := haversineKm(c.Latitude, c.Longitude, *d.CurrentLatitude, *d.CurrentLongitude)
			sg.DistanceKm = &km
		}
		out = append(out, sg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DistanceKm, out[j].DistanceKm
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case (a == nil) != (b == nil):
			return a != nil
		}
		return out[i].Driver.Name < out[j].Driver.Name
	})
	return out, nil
}

// CountPending returns the number of calls waiting for dispatch.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.calls.CountByStatus(ctx, StatusPending)
}
