package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/calendar"
	"slotbook/internal/domain"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/slots"
)

// SlotRequest is a slot listing as received from a caller. Zero Granularity
// and Limit fall back to the configured defaults.
type SlotRequest struct {
	ServiceID   string
	Date        time.Time
	Timezone    string
	StaffID     string
	LocationID  string
	Granularity int
	WindowStart *models.Clock
	WindowEnd   *models.Clock
	Limit       int
	Offset      int
}

// CalendarRequest selects the staff days shown in a calendar view.
type CalendarRequest struct {
	StaffID    string
	LocationID string
	From       time.Time
	To         time.Time
}

// Span is a free interval in a calendar view.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarDay summarizes one staff member's date.
type CalendarDay struct {
	Date          string `json:"date"`
	StaffID       string `json:"staff_id"`
	Scheduled     bool   `json:"scheduled"`
	Timezone      string `json:"timezone,omitempty"`
	Free          []Span `json:"free"`
	FreeMinutes   int    `json:"free_minutes"`
	Bookings      int    `json:"bookings"`
	Holds         int    `json:"holds"`
	BookedMinutes int    `json:"booked_minutes"`
}

const maxCalendarDays = 92

type AvailabilityService struct {
	store     domain.Store
	generator *slots.Generator
	resolver  *calendar.Resolver
	cache     domain.SlotCache
	opts      Options
	pageLimit int
	logger    *zerolog.Logger
}

func NewAvailabilityService(
	store domain.Store,
	generator *slots.Generator,
	cache domain.SlotCache,
	opts Options,
	pageLimit int,
	logger *zerolog.Logger,
) *AvailabilityService {
	opts = opts.withDefaults()
	if pageLimit <= 0 {
		pageLimit = models.DefaultSlotPageLimit
	}
	return &AvailabilityService{
		store:     store,
		generator: generator,
		resolver:  calendar.NewResolver(store),
		cache:     cache,
		opts:      opts,
		pageLimit: pageLimit,
		logger:    logging.Component(logger, "availability_service"),
	}
}

func (s *AvailabilityService) query(actor models.Actor, req SlotRequest) slots.Query {
	q := slots.Query{
		ServiceID:      req.ServiceID,
		Date:           models.DateOf(req.Date),
		Timezone:       req.Timezone,
		StaffID:        req.StaffID,
		LocationID:     req.LocationID,
		Granularity:    req.Granularity,
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
		MinNotice:      s.opts.Policy.MinNotice,
		MaxBookingDays: s.opts.Policy.MaxBookingDays,
		Actor:          actor,
		Limit:          req.Limit,
		Offset:         req.Offset,
	}
	if q.Timezone == "" {
		q.Timezone = "UTC"
	}
	if q.Granularity == 0 {
		q.Granularity = s.opts.Policy.Granularity
	}
	if q.Limit == 0 {
		q.Limit = s.pageLimit
	}
	return q
}

// ListSlots returns one sorted page of slots, read through the cache.
func (s *AvailabilityService) ListSlots(ctx context.Context, actor models.Actor, req SlotRequest) ([]models.Slot, error) {
	q := s.query(actor, req)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.page(ctx, q)
}

func (s *AvailabilityService) page(ctx context.Context, q slots.Query) ([]models.Slot, error) {
	key := q.CacheKey()
	if cached, ok := s.lookup(ctx, key); ok {
		return cached, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	list, err := s.generator.Generate(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSlotGeneration(time.Since(started))

	slots.Sort(list)
	list = slots.Page(list, q.Offset, q.Limit)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, list); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache slots")
		}
	}
	return list, nil
}

func (s *AvailabilityService) lookup(ctx context.Context, key string) ([]models.Slot, bool) {
	if s.cache == nil {
		return nil, false
	}
	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.IncSlotCache("error")
		s.logger.Warn().Err(err).Msg("Slot cache lookup failed")
		return nil, false
	case ok:
		metrics.IncSlotCache("hit")
		return cached, true
	}
	metrics.IncSlotCache("miss")
	return nil, false
}

// NextAvailableDate scans forward from today in the request's zone and
// returns the first date with at least one slot, or nil.
func (s *AvailabilityService) NextAvailableDate(ctx context.Context, actor models.Actor, req SlotRequest) (*time.Time, error) {
	req.WindowStart, req.WindowEnd = nil, nil
	req.Offset = 0

	q := s.query(actor, req)
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, domain.Rejectf(domain.ErrConfiguration, "invalid timezone %q", q.Timezone)
	}
	today := models.DateOf(s.opts.Now().In(loc))

	for offset := 0; offset <= s.opts.Policy.MaxBookingDays; offset++ {
		q.Date = today.AddDate(0, 0, offset)
		if err := q.Validate(); err != nil {
			return nil, err
		}
		list, err := s.page(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			date := q.Date
			return &date, nil
		}
	}
	return nil, nil
}

// Calendar reports free time and occupancy per staff member and date.
// Staff only see themselves; customers may not use it.
func (s *AvailabilityService) Calendar(ctx context.Context, actor models.Actor, req CalendarRequest) ([]CalendarDay, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStaff:
		if req.StaffID != "" && req.StaffID != actor.ID {
			return nil, domain.Reject(domain.ErrForbidden, "Forbidden")
		}
		req.StaffID = actor.ID
	default:
		return nil, domain.Reject(domain.ErrForbidden, "Forbidden")
	}

	from, to := models.DateOf(req.From), models.DateOf(req.To)
	if from.IsZero() || to.IsZero() {
		return nil, domain.Reject(domain.ErrConfiguration, "start_date and end_date are required")
	}
	if to.Before(from) {
		return nil, domain.Reject(domain.ErrConfiguration, "end_date must not precede start_date")
	}
	if to.Sub(from) > maxCalendarDays*24*time.Hour {
		return nil, domain.Rejectf(domain.ErrConfiguration, "calendar range is limited to %d days", maxCalendarDays)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	staffIDs := []string{req.StaffID}
	if req.StaffID == "" {
		staff, err := s.store.ListStaff(ctx, req.LocationID)
		if err != nil {
			return nil, err
		}
		staffIDs = staffIDs[:0]
		for _, st := range staff {
			staffIDs = append(staffIDs, st.ID)
		}
	}

	now := s.opts.Now()
	var out []CalendarDay
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		for _, staffID := range staffIDs {
			entry, err := s.calendarDay(ctx, staffID, req.LocationID, date, now)
			if err != nil {
				return nil, err
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *AvailabilityService) calendarDay(ctx context.Context, staffID, locationID string, date, now time.Time) (CalendarDay, error) {
	entry := CalendarDay{Date: date.Format(models.DateLayout), StaffID: staffID, Free: []Span{}}

	day, err := s.resolver.ResolveDay(ctx, staffID, date, locationID)
	if err != nil || day == nil {
		return entry, err
	}
	entry.Scheduled = true
	entry.Timezone = day.Schedule.Timezone
	for _, iv := range day.Free {
		entry.Free = append(entry.Free, Span{Start: iv.Start, End: iv.End})
		entry.FreeMinutes += int(iv.Duration() / time.Minute)
	}

	occupants, err := s.store.ListOccupants(ctx, domain.OccupancyQuery{
		StaffID: staffID,
		From:    day.Bounds.Start.UTC(),
		To:      day.Bounds.End.UTC(),
		Now:     now,
	})
	if err != nil {
		return entry, err
	}
	for _, o := range occupants {
		if o.Kind == models.OccupantHold {
			entry.Holds++
			continue
		}
		entry.Bookings++
		entry.BookedMinutes += int(o.End.Sub(o.Start) / time.Minute)
	}
	return entry, nil
}

func (s *AvailabilityService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}
