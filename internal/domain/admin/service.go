package admin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/platform/websocket"
)

// PendingCounter is satisfied by the emergency and pharmacy services.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Gauges receives the refreshed counts. metrics.Metrics satisfies it.
type Gauges interface {
	SetPending(kind string, n int)
}

type Service struct {
	calls     PendingCounter
	orders    PendingCounter
	gauges    Gauges
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(calls, orders PendingCounter, logger zerolog.Logger) *Service {
	return &Service{
		calls:  calls,
		orders: orders,
		logger: logger.With().Str("domain", "admin").Logger(),
	}
}

func (s *Service) SetGauges(g Gauges) {
	s.gauges = g
}

// SetPublisher enables the dashboard broadcast on the admin topic.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.publisher = p
}

func (s *Service) Counts(ctx context.Context) (*Counts, error) {
	sos, err := s.calls.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending calls: %w", err)
	}
	orders, err := s.orders.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending orders: %w", err)
	}
	return &Counts{SOS: sos, Orders: orders}, nil
}

// RefreshDashboard recomputes the counts, updates the gauges and pushes
// them to subscribers of the admin topic. The job scheduler runs it.
func (s *Service) RefreshDashboard(ctx context.Context) error {
	counts, err := s.Counts(ctx)
	if err != nil {
		return err
	}
	if s.gauges != nil {
		s.gauges.SetPending(KindSOS, counts.SOS)
		s.gauges.SetPending(KindOrders, counts.Orders)
	}
	websocket.Notify(ctx, s.publisher, s.logger, websocket.EventCounts, "Dashboard", "", counts, websocket.TopicAdmin)
	return nil
}
