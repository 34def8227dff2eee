package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/logging"
	"slotbook/internal/models"
)

// HoldRequest reserves a window softly until ExpiresAt.
type HoldRequest struct {
	StaffID    string    `json:"staff_id"`
	ServiceID  string    `json:"service_id"`
	LocationID string    `json:"location_id,omitempty"`
	Start      time.Time `json:"start_utc"`
	End        time.Time `json:"end_utc"`
	ExpiresAt  time.Time `json:"expires_at_utc"`
}

// HoldService manages soft reservations. Holds are not validated against
// schedules; they only hide time from other actors until they expire.
type HoldService struct {
	store    domain.HoldRepository
	eventBus domain.EventPublisher
	opts     Options
	logger   *zerolog.Logger
}

func NewHoldService(store domain.HoldRepository, eventBus domain.EventPublisher, opts Options, logger *zerolog.Logger) *HoldService {
	opts = opts.withDefaults()
	return &HoldService{store: store, eventBus: eventBus, opts: opts, logger: logging.Component(logger, "hold_service")}
}

func (s *HoldService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// Create stores a hold owned by the actor.
func (s *HoldService) Create(ctx context.Context, actor models.Actor, req HoldRequest) (*models.Hold, error) {
	if req.StaffID == "" || req.ServiceID == "" {
		return nil, domain.Reject(domain.ErrConfiguration, "staff_id and service_id are required")
	}
	if !req.End.After(req.Start) {
		return nil, domain.Reject(domain.ErrConfiguration, "end_utc must be after start_utc")
	}

	hold := &models.Hold{
		ID:         uuid.NewString(),
		StaffID:    req.StaffID,
		ServiceID:  req.ServiceID,
		LocationID: req.LocationID,
		Start:      req.Start.UTC(),
		End:        req.End.UTC(),
		ExpiresAt:  req.ExpiresAt.UTC(),
		CreatedBy:  actor.ID,
		CreatedAt:  s.opts.Now().UTC(),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.CreateHold(ctx, hold); err != nil {
		s.logger.Error().Err(err).Str("staff_id", req.StaffID).Msg("Failed to create hold")
		return nil, err
	}

	s.publish(events.EventHoldCreated, holdPayload(hold, actor))
	return hold, nil
}

// Delete releases a hold. Only its creator or an admin may do so.
func (s *HoldService) Delete(ctx context.Context, actor models.Actor, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hold, err := s.store.GetHold(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && hold.CreatedBy != actor.ID {
		return domain.Reject(domain.ErrForbidden, "Forbidden")
	}
	if err := s.store.DeleteHold(ctx, id); err != nil {
		return err
	}

	s.publish(events.EventHoldReleased, holdPayload(hold, actor))
	return nil
}

// List returns the staff member's live holds. Customers only see their own.
func (s *HoldService) List(ctx context.Context, actor models.Actor, staffID string) ([]models.Hold, error) {
	if staffID == "" {
		return nil, domain.Reject(domain.ErrConfiguration, "staff_id is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	holds, err := s.store.ListActiveHolds(ctx, staffID, s.opts.Now())
	if err != nil {
		return nil, err
	}
	if !actor.IsCustomer() {
		return holds, nil
	}
	own := holds[:0]
	for _, h := range holds {
		if h.CreatedBy == actor.ID {
			own = append(own, h)
		}
	}
	return own, nil
}

func holdPayload(h *models.Hold, actor models.Actor) events.HoldEventPayload {
	return events.HoldEventPayload{
		HoldID:    h.ID,
		StaffID:   h.StaffID,
		ServiceID: h.ServiceID,
		Start:     h.Start,
		End:       h.End,
		ExpiresAt: h.ExpiresAt,
		ChangedBy: actor.ID,
	}
}

func (s *HoldService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
