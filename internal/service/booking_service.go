package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/slots"
	"slotbook/internal/worker"
)

// Options tunes the booking and hold services.
type Options struct {
	Policy       Policy
	StoreTimeout time.Duration
	LockTTL      time.Duration
	LockRetry    worker.RetryPolicy
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Policy.Granularity == 0 {
		o.Policy.Granularity = models.DefaultSlotGranularityMinutes
	}
	if o.Policy.MaxBookingDays <= 0 {
		o.Policy.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Second
	}
	if o.LockRetry.InitialDelay <= 0 {
		o.LockRetry = worker.RetryPolicy{InitialDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffFactor: 2}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// CreateRequest is a booking request as received from a caller.
type CreateRequest struct {
	ServiceID        string    `json:"service_id"`
	StaffID          string    `json:"staff_id"`
	CustomerID       string    `json:"customer_id"`
	LocationID       string    `json:"location_id,omitempty"`
	Start            time.Time `json:"start_time_utc"`
	Source           string    `json:"booking_source"`
	CustomerTimezone string    `json:"customer_timezone,omitempty"`
	// Granularity is the slot grid of the listing the start came from.
	Granularity int `json:"granularity_minutes,omitempty"`
}

// UpdateRequest changes any of start, status and payment status in one call.
type UpdateRequest struct {
	Start         *time.Time `json:"start_time_utc,omitempty"`
	Status        *string    `json:"status,omitempty"`
	PaymentStatus *string    `json:"payment_status,omitempty"`
	Granularity   int        `json:"granularity_minutes,omitempty"`
}

type BookingService struct {
	store     domain.Store
	checker   *Checker
	generator *slots.Generator
	locker    domain.Locker
	eventBus  domain.EventPublisher
	opts      Options
	logger    *zerolog.Logger
}

func NewBookingService(
	store domain.Store,
	generator *slots.Generator,
	locker domain.Locker,
	eventBus domain.EventPublisher,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	opts = opts.withDefaults()
	return &BookingService{
		store:     store,
		checker:   NewChecker(store, generator, opts.Policy, opts.Now),
		generator: generator,
		locker:    locker,
		eventBus:  eventBus,
		opts:      opts,
		logger:    logging.Component(logger, "booking_service"),
	}
}

// Checker exposes the gate sequence for dry runs.
func (s *BookingService) Checker() *Checker {
	return s.checker
}

func (s *BookingService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// Create validates and commits a new booking.
func (s *BookingService) Create(ctx context.Context, actor models.Actor, req CreateRequest) (*models.Booking, error) {
	booking, err := s.create(ctx, actor, req)
	metrics.IncBooking("create", outcome(err))
	s.logResult("create", req.StaffID, err)
	return booking, err
}

func (s *BookingService) create(ctx context.Context, actor models.Actor, req CreateRequest) (*models.Booking, error) {
	switch actor.Role {
	case models.RoleCustomer:
		req.CustomerID = actor.ID
	case models.RoleStaff:
		if req.StaffID != actor.ID {
			return nil, domain.Reject(domain.ErrForbidden, "Forbidden")
		}
	}
	if err := validateCreate(actor, req); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var booking *models.Booking
	err := s.withLocks(ctx, lockKeys(req.StaffID, req.Start), func(ctx context.Context) error {
		verdict, err := s.checker.Check(ctx, CheckRequest{
			Actor:            actor,
			ServiceID:        req.ServiceID,
			StaffID:          req.StaffID,
			CustomerID:       req.CustomerID,
			LocationID:       req.LocationID,
			Start:            req.Start,
			CustomerTimezone: req.CustomerTimezone,
			Granularity:      req.Granularity,
		})
		if err != nil {
			return err
		}

		b := &models.Booking{
			ID:               uuid.NewString(),
			ServiceID:        req.ServiceID,
			StaffID:          req.StaffID,
			CustomerID:       req.CustomerID,
			Start:            verdict.Window.Start,
			End:              verdict.Window.End,
			Status:           models.StatusPending,
			PaymentStatus:    models.PaymentPending,
			Source:           req.Source,
			CustomerTimezone: req.CustomerTimezone,
		}
		logEntry, err := newLog(models.LogActionCreated, actor, map[string]any{
			"service_id":     b.ServiceID,
			"staff_id":       b.StaffID,
			"customer_id":    b.CustomerID,
			"start_time_utc": b.Start,
			"end_time_utc":   b.End,
			"booking_source": b.Source,
		})
		if err != nil {
			return err
		}

		if err := s.store.CommitBooking(ctx, &domain.BookingCommit{
			Booking:  b,
			Capacity: verdict.Terms.Capacity,
			Limits:   verdict.Limits,
			ActorID:  actor.ID,
			Now:      s.opts.Now(),
			Log:      logEntry,
		}); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCreated, bookingPayload(booking, actor, time.Time{}, ""))
	return booking, nil
}

func validateCreate(actor models.Actor, req CreateRequest) error {
	if req.ServiceID == "" || req.StaffID == "" {
		return domain.Reject(domain.ErrConfiguration, "service_id and staff_id are required")
	}
	if req.CustomerID == "" {
		return domain.Reject(domain.ErrConfiguration, "customer_id is required")
	}
	if req.Start.IsZero() {
		return domain.Reject(domain.ErrConfiguration, "start_time_utc is required")
	}
	if !models.ValidSource(req.Source) {
		return domain.Reject(domain.ErrConfiguration, "Invalid booking source")
	}
	if actor.IsCustomer() && req.Source != models.SourceWeb && req.Source != models.SourceSocial {
		return domain.Reject(domain.ErrForbidden, "Forbidden booking source")
	}
	if req.CustomerTimezone != "" {
		if _, err := time.LoadLocation(req.CustomerTimezone); err != nil {
			return domain.Rejectf(domain.ErrConfiguration, "invalid timezone %q", req.CustomerTimezone)
		}
	}
	return nil
}

// Reschedule moves a booking to a new start.
func (s *BookingService) Reschedule(ctx context.Context, actor models.Actor, id string, start time.Time) (*models.Booking, error) {
	return s.Update(ctx, actor, id, UpdateRequest{Start: &start})
}

// Update applies a partial change. A new start runs the full gate sequence
// with the booking itself excluded from occupancy and limits.
func (s *BookingService) Update(ctx context.Context, actor models.Actor, id string, req UpdateRequest) (*models.Booking, error) {
	booking, err := s.update(ctx, actor, id, req)
	metrics.IncBooking("update", outcome(err))
	s.logResult("update", id, err)
	return booking, err
}

func (s *BookingService) update(ctx context.Context, actor models.Actor, id string, req UpdateRequest) (*models.Booking, error) {
	if req.Start == nil && req.Status == nil && req.PaymentStatus == nil {
		return nil, domain.Reject(domain.ErrConfiguration, "No fields to update")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	current, err := s.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Start != nil {
		if actor.Role == models.RoleStaff {
			return nil, domain.Reject(domain.ErrForbidden, "Forbidden")
		}
		if models.TerminalStatus(current.Status) {
			return nil, domain.Reject(domain.ErrPolicyViolation, "Cannot reschedule this booking")
		}
	}
	if req.Status != nil {
		if actor.IsCustomer() {
			return nil, domain.Reject(domain.ErrForbidden, "Forbidden")
		}
		if !models.ValidStatus(*req.Status) {
			return nil, domain.Rejectf(domain.ErrConfiguration, "invalid status %q", *req.Status)
		}
	}
	if req.PaymentStatus != nil {
		if actor.IsCustomer() {
			return nil, domain.Reject(domain.ErrForbidden, "Forbidden")
		}
		if !models.ValidPaymentStatus(*req.PaymentStatus) {
			return nil, domain.Rejectf(domain.ErrConfiguration, "invalid payment status %q", *req.PaymentStatus)
		}
	}

	starts := []time.Time{current.Start}
	if req.Start != nil {
		starts = append(starts, *req.Start)
	}

	var updated *models.Booking
	err = s.withLocks(ctx, lockKeys(current.StaffID, starts...), func(ctx context.Context) error {
		patch := models.BookingPatch{Status: req.Status, PaymentStatus: req.PaymentStatus}
		capacity := 0
		var limits *domain.BookingLimits

		if req.Start != nil {
			verdict, err := s.checker.Check(ctx, CheckRequest{
				Actor:            actor,
				ServiceID:        current.ServiceID,
				StaffID:          current.StaffID,
				CustomerID:       current.CustomerID,
				Start:            *req.Start,
				CustomerTimezone: current.CustomerTimezone,
				Granularity:      req.Granularity,
				ExcludeBookingID: current.ID,
			})
			if err != nil {
				return err
			}
			patch.Start = &verdict.Window.Start
			patch.End = &verdict.Window.End
			capacity = verdict.Terms.Capacity
			limits = verdict.Limits
		} else if req.Status != nil && !models.OccupyingStatus(current.Status) && models.OccupyingStatus(*req.Status) {
			c, err := s.capacityOf(ctx, current)
			if err != nil {
				return err
			}
			capacity = c
		}

		change, logEntry, err := describeUpdate(actor, current, req)
		if err != nil {
			return err
		}

		updated, err = s.store.UpdateBooking(ctx, &domain.BookingUpdate{
			BookingID: current.ID,
			Patch:     patch,
			Capacity:  capacity,
			Limits:    limits,
			ActorID:   actor.ID,
			Now:       s.opts.Now(),
			Change:    change,
			Log:       logEntry,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case req.Start != nil:
		s.publish(events.EventBookingRescheduled, bookingPayload(updated, actor, current.Start, ""))
	case req.Status != nil && *req.Status == models.StatusCancelled:
		s.publish(events.EventBookingCancelled, bookingPayload(updated, actor, time.Time{}, ""))
	case req.Status != nil:
		s.publish(events.EventBookingStatusChanged, bookingPayload(updated, actor, time.Time{}, ""))
	}
	if req.PaymentStatus != nil {
		s.publish(events.EventBookingPaymentUpdate, bookingPayload(updated, actor, time.Time{}, ""))
	}
	return updated, nil
}

// describeUpdate derives the change row and the log action of an update.
func describeUpdate(actor models.Actor, current *models.Booking, req UpdateRequest) (*models.BookingChange, *models.BookingLog, error) {
	changeType := ""
	details := map[string]any{}

	if req.Start != nil {
		changeType = models.ChangeReschedule
		details["old_start_time_utc"] = current.Start
		details["new_start_time_utc"] = req.Start.UTC()
	}
	if req.Status != nil {
		if changeType == "" {
			changeType = models.ChangeStatusUpdate
			if *req.Status == models.StatusCancelled {
				changeType = models.ChangeCancel
			}
		}
		details["old_status"] = current.Status
		details["new_status"] = *req.Status
	}
	if req.PaymentStatus != nil {
		details["old_payment_status"] = current.PaymentStatus
		details["new_payment_status"] = *req.PaymentStatus
	}

	action := models.LogActionUpdated
	switch changeType {
	case models.ChangeReschedule:
		action = models.LogActionRescheduled
	case models.ChangeCancel:
		action = models.LogActionCancelled
	case models.ChangeStatusUpdate:
		action = models.LogActionStatusUpdated
	default:
		if req.PaymentStatus != nil {
			action = models.LogActionPaymentUpdate
		}
	}

	logEntry, err := newLog(action, actor, details)
	if err != nil {
		return nil, nil, err
	}
	if changeType == "" {
		return nil, logEntry, nil
	}

	change := &models.BookingChange{
		ID:         uuid.NewString(),
		ChangeType: changeType,
		ChangedBy:  actor.ID,
	}
	if changeType == models.ChangeReschedule {
		oldStart, newStart := current.Start, req.Start.UTC()
		change.OldStart = &oldStart
		change.NewStart = &newStart
	}
	return change, logEntry, nil
}

// Cancel marks a booking cancelled. Any role with access may cancel, and
// cancelling a cancelled booking returns it unchanged.
func (s *BookingService) Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Booking, error) {
	booking, err := s.cancel(ctx, actor, id, reason)
	metrics.IncBooking("cancel", outcome(err))
	s.logResult("cancel", id, err)
	return booking, err
}

func (s *BookingService) cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	current, err := s.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusCancelled {
		return current, nil
	}

	status := models.StatusCancelled
	logEntry, err := newLog(models.LogActionCancelled, actor, map[string]any{
		"old_status": current.Status,
		"reason":     reason,
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateBooking(ctx, &domain.BookingUpdate{
		BookingID: current.ID,
		Patch:     models.BookingPatch{Status: &status},
		ActorID:   actor.ID,
		Now:       s.opts.Now(),
		Change: &models.BookingChange{
			ID:         uuid.NewString(),
			ChangeType: models.ChangeCancel,
			ChangedBy:  actor.ID,
			Reason:     reason,
		},
		Log: logEntry,
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCancelled, bookingPayload(updated, actor, time.Time{}, reason))
	return updated, nil
}

// Rebook books the same service and staff member at the earliest open slot,
// scanning forward from today in the customer's zone. Slots of the first day
// that has any are tried in order until one commits.
func (s *BookingService) Rebook(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	original, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	tz := original.CustomerTimezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, domain.Rejectf(domain.ErrConfiguration, "invalid timezone %q", tz)
	}

	source := models.SourceAdmin
	if actor.IsCustomer() {
		source = models.SourceWeb
	}

	today := models.DateOf(s.opts.Now().In(loc))
	var lastErr error
	for offset := 0; offset <= s.opts.Policy.MaxBookingDays; offset++ {
		candidates, err := s.generator.Generate(ctx, slots.Query{
			ServiceID:      original.ServiceID,
			Date:           today.AddDate(0, 0, offset),
			Timezone:       tz,
			StaffID:        original.StaffID,
			Granularity:    s.opts.Policy.Granularity,
			MinNotice:      s.opts.Policy.MinNotice,
			MaxBookingDays: s.opts.Policy.MaxBookingDays,
			Actor:          actor,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}
		slots.Sort(candidates)

		for _, slot := range candidates {
			booking, err := s.Create(ctx, actor, CreateRequest{
				ServiceID:        original.ServiceID,
				StaffID:          original.StaffID,
				CustomerID:       original.CustomerID,
				Start:            slot.Start.UTC(),
				Source:           source,
				CustomerTimezone: tz,
				Granularity:      s.opts.Policy.Granularity,
			})
			if err == nil {
				return booking, nil
			}
			if !retryableRebook(err) {
				return nil, err
			}
			lastErr = err
		}
		break
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, domain.Reject(domain.ErrAvailabilityConflict, "No available slots")
}

func retryableRebook(err error) bool {
	return errors.Is(err, domain.ErrAvailabilityConflict) ||
		errors.Is(err, domain.ErrCapacityExceeded) ||
		errors.Is(err, domain.ErrPolicyViolation)
}

// Get returns a booking the actor may see.
func (s *BookingService) Get(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.get(ctx, actor, id)
}

func (s *BookingService) get(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureAccess(actor, b); err != nil {
		return nil, err
	}
	return b, nil
}

// List scopes the filter to the actor: staff see their own bookings and
// customers see theirs.
func (s *BookingService) List(ctx context.Context, actor models.Actor, f domain.BookingFilter) ([]models.Booking, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStaff:
		f.StaffID = actor.ID
	default:
		f.CustomerID = actor.ID
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.ListBookings(ctx, f)
}

func (s *BookingService) Logs(ctx context.Context, actor models.Actor, id string) ([]models.BookingLog, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListBookingLogs(ctx, id)
}

func (s *BookingService) Changes(ctx context.Context, actor models.Actor, id string) ([]models.BookingChange, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListBookingChanges(ctx, id)
}

func ensureAccess(actor models.Actor, b *models.Booking) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStaff:
		if b.StaffID == actor.ID {
			return nil
		}
	case models.RoleCustomer:
		if b.CustomerID == actor.ID {
			return nil
		}
	}
	return domain.Reject(domain.ErrForbidden, "Forbidden")
}

func (s *BookingService) capacityOf(ctx context.Context, b *models.Booking) (int, error) {
	svc, err := s.store.GetService(ctx, b.ServiceID)
	if err != nil {
		return 0, err
	}
	assignment, err := s.store.GetStaffService(ctx, b.StaffID, b.ServiceID)
	if err != nil {
		return 0, err
	}
	if assignment == nil {
		assignment = &models.StaffService{}
	}
	return assignment.Terms(svc).Capacity, nil
}

// lockKeys buckets a staff member's time by UTC date.
func lockKeys(staffID string, starts ...time.Time) []string {
	seen := make(map[string]bool, len(starts))
	keys := make([]string, 0, len(starts))
	for _, t := range starts {
		k := fmt.Sprintf("booking:%s:%s", staffID, t.UTC().Format(models.DateLayout))
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// withLocks holds every key for the duration of fn. Keys are taken in the
// given order; a held key is retried until ctx ends.
func (s *BookingService) withLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	var releases []func(context.Context) error
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to release booking lock")
			}
		}
	}()

	for _, key := range keys {
		var release func(context.Context) error
		err := s.opts.LockRetry.Do(ctx, func(ctx context.Context) error {
			r, err := s.locker.Acquire(ctx, key, s.opts.LockTTL)
			if err != nil {
				return err
			}
			release = r
			return nil
		}, func(err error) bool { return errors.Is(err, domain.ErrLockHeld) })
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("failed to acquire %s: %w", key, domain.ErrStoreUnavailable)
			}
			return err
		}
		releases = append(releases, release)
	}
	return fn(ctx)
}

func newLog(action string, actor models.Actor, details map[string]any) (*models.BookingLog, error) {
	entry := &models.BookingLog{
		ID:          uuid.NewString(),
		Action:      action,
		PerformedBy: actor.ID,
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to encode log details: %w", err)
		}
		entry.Details = raw
	}
	return entry, nil
}

func bookingPayload(b *models.Booking, actor models.Actor, previous time.Time, reason string) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:     b.ID,
		ServiceID:     b.ServiceID,
		StaffID:       b.StaffID,
		CustomerID:    b.CustomerID,
		Start:         b.Start,
		End:           b.End,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		PreviousStart: previous,
		ChangedBy:     actor.ID,
		Reason:        reason,
	}
}

func (s *BookingService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func (s *BookingService) logResult(op, subject string, err error) {
	switch {
	case err == nil:
		s.logger.Info().Str("op", op).Str("subject", subject).Msg("Booking operation succeeded")
	case IsRejection(err):
		s.logger.Debug().Str("op", op).Str("subject", subject).Str("reason", domain.Reason(err)).Msg("Booking rejected")
	default:
		s.logger.Error().Err(err).Str("op", op).Str("subject", subject).Msg("Booking operation failed")
	}
}

// outcome is the metrics label of an operation result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch domain.KindOf(err) {
	case domain.ErrConfiguration:
		return "configuration"
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrAvailabilityConflict:
		return "availability_conflict"
	case domain.ErrCapacityExceeded:
		return "capacity_exceeded"
	case domain.ErrPolicyViolation:
		return "policy_violation"
	case domain.ErrForbidden:
		return "forbidden"
	case domain.ErrStoreUnavailable:
		return "store_unavailable"
	}
	return "error"
}
