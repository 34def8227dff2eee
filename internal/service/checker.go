package service

import (
	"context"
	"errors"
	"time"

	"slotbook/internal/calendar"
	"slotbook/internal/domain"
	"slotbook/internal/interval"
	"slotbook/internal/models"
	"slotbook/internal/occupancy"
	"slotbook/internal/operating"
	"slotbook/internal/slots"
)

// Policy holds the engine-wide booking settings.
type Policy struct {
	Granularity    int
	MinNotice      int
	MaxBookingDays int
}

// DefaultPolicy returns the stock granularity, notice and horizon.
func DefaultPolicy() Policy {
	return Policy{
		Granularity:    models.DefaultSlotGranularityMinutes,
		MinNotice:      models.DefaultMinNoticeMinutes,
		MaxBookingDays: models.DefaultMaxBookingDays,
	}
}

// CheckRequest is one proposed booking window.
type CheckRequest struct {
	Actor            models.Actor
	ServiceID        string
	StaffID          string
	CustomerID       string
	LocationID       string
	Start            time.Time
	CustomerTimezone string
	// Granularity is the slot grid the start was picked from. Zero means the
	// policy granularity.
	Granularity int
	// ExcludeBookingID is set when an existing booking is being moved.
	ExcludeBookingID string
}

// Verdict is what a passing check resolved.
type Verdict struct {
	Service    *models.Service
	Assignment *models.StaffService
	Terms      models.Terms
	Schedule   *models.WeeklySchedule
	// Limits are recounted by the store when the booking is written.
	Limits *domain.BookingLimits
	// Window covers duration plus buffer.
	Window interval.Interval
}

// Checker validates a proposed booking against live data. The gates run in
// a fixed order and the first failure wins.
type Checker struct {
	store     domain.Store
	resolver  *calendar.Resolver
	operating *operating.Filter
	generator *slots.Generator
	policy    Policy
	now       func() time.Time
}

func NewChecker(store domain.Store, generator *slots.Generator, policy Policy, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{
		store:     store,
		resolver:  calendar.NewResolver(store),
		operating: operating.NewFilter(store),
		generator: generator,
		policy:    policy,
		now:       now,
	}
}

func unavailable(reason string) error {
	return domain.Reject(domain.ErrAvailabilityConflict, reason)
}

// Check runs every gate. Capacity is checked here against a snapshot; the
// store repeats it inside the commit transaction.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (*Verdict, error) {
	now := c.now()
	start := req.Start.UTC()
	if req.Granularity == 0 {
		req.Granularity = c.policy.Granularity
	}
	if !models.ValidGranularity(req.Granularity) {
		return nil, domain.Rejectf(domain.ErrConfiguration, "invalid granularity %d; allowed: 5, 10, 15, 30", req.Granularity)
	}

	svc, err := c.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive || svc.IsArchived {
		return nil, unavailable("Service is not available")
	}
	if svc.Paused(now) {
		return nil, unavailable("Service is paused")
	}

	assignment, err := c.store.GetStaffService(ctx, req.StaffID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, unavailable("Staff is not assigned to this service")
	}
	if !assignment.Available() {
		return nil, unavailable("Staff is not bookable for this service")
	}
	if assignment.AdminOnly && req.Actor.IsCustomer() {
		return nil, domain.Reject(domain.ErrForbidden, "Staff is only bookable by admin")
	}

	terms := assignment.Terms(svc)
	end := start.Add(time.Duration(terms.Total()) * time.Minute)
	window := interval.New(start, end)

	// The schedule's zone decides the local date, so the UTC date only picks
	// the zone and the local date picks the schedule that applies.
	candidates, err := c.store.ListWeeklySchedules(ctx, req.StaffID, models.DateOf(start))
	if err != nil {
		return nil, err
	}
	probe := calendar.SelectSchedule(candidates, models.DateOf(start), req.LocationID)
	if probe == nil {
		return nil, unavailable("Staff schedule is not configured")
	}
	loc, err := probe.Location()
	if err != nil {
		return nil, domain.Reject(domain.ErrConfiguration, err.Error())
	}
	localDate := models.DateOf(start.In(loc))

	day, err := c.resolver.ResolveDay(ctx, req.StaffID, localDate, req.LocationID)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, unavailable("Staff schedule is not configured")
	}
	schedule := day.Schedule
	limits := &domain.BookingLimits{
		MaxPerDay:      schedule.MaxBookingsPerDay,
		DayStart:       day.Bounds.Start.UTC(),
		DayEnd:         day.Bounds.End.UTC(),
		MaxPerCustomer: schedule.MaxBookingsPerCustomer,
		CustomerID:     req.CustomerID,
	}

	if err := c.dailyLimit(ctx, req, limits); err != nil {
		return nil, err
	}
	if err := c.customerLimit(ctx, req, limits, now); err != nil {
		return nil, err
	}
	if err := c.slotMembership(ctx, req, day, localDate, start); err != nil {
		return nil, err
	}

	opWindow, err := c.operating.ForDate(ctx, svc.ID, localDate)
	if err != nil {
		return nil, err
	}
	if !opWindow.Allows(start, end) {
		return nil, unavailable("Service is not available at this time")
	}

	if start.Before(now.Add(time.Duration(c.policy.MinNotice) * time.Minute)) {
		return nil, domain.Reject(domain.ErrPolicyViolation, "Booking does not meet minimum notice")
	}
	if start.After(now.In(day.Location).AddDate(0, 0, c.policy.MaxBookingDays)) {
		return nil, domain.Reject(domain.ErrPolicyViolation, "Booking exceeds maximum window")
	}

	if err := containment(day, window); err != nil {
		return nil, err
	}
	if interval.AnyOverlap(day.Blocked(), window) {
		return nil, unavailable("Staff is unavailable for this time")
	}

	occupants, err := c.store.ListOccupants(ctx, domain.OccupancyQuery{
		StaffID:          req.StaffID,
		From:             start,
		To:               end,
		Now:              now,
		ExcludeBookingID: req.ExcludeBookingID,
	})
	if err != nil {
		return nil, err
	}
	if err := occupancy.Check(occupants, occupancy.Request{
		ServiceID: svc.ID,
		Window:    window,
		Capacity:  terms.Capacity,
		ActorID:   req.Actor.ID,
	}); err != nil {
		return nil, err
	}

	return &Verdict{
		Service:    svc,
		Assignment: assignment,
		Terms:      terms,
		Schedule:   schedule,
		Limits:     limits,
		Window:     window,
	}, nil
}

func (c *Checker) dailyLimit(ctx context.Context, req CheckRequest, limits *domain.BookingLimits) error {
	if limits.MaxPerDay == nil {
		return nil
	}
	n := 0
	if *limits.MaxPerDay > 0 {
		var err error
		n, err = c.store.CountStaffBookings(ctx, req.StaffID, limits.DayStart, limits.DayEnd, req.ExcludeBookingID)
		if err != nil {
			return err
		}
	}
	return limits.DailyReached(n)
}

func (c *Checker) customerLimit(ctx context.Context, req CheckRequest, limits *domain.BookingLimits, now time.Time) error {
	if limits.MaxPerCustomer == nil || limits.CustomerID == "" {
		return nil
	}
	n := 0
	if *limits.MaxPerCustomer > 0 {
		var err error
		n, err = c.store.CountCustomerBookings(ctx, req.StaffID, limits.CustomerID, now, req.ExcludeBookingID)
		if err != nil {
			return err
		}
	}
	return limits.CustomerReached(n)
}

// slotMembership requires the start to be a slot the generator could list.
// Every start must sit on the granularity grid counted from local midnight;
// the remaining listing rules are enforced by the gates that follow. With
// max_slots_per_day the day's slots are regenerated and the start must be
// among them.
func (c *Checker) slotMembership(ctx context.Context, req CheckRequest, day *calendar.Day, localDate, start time.Time) error {
	notListed := unavailable("Selected time is not available")

	local := start.In(day.Location)
	if !slots.RoundUp(local, req.Granularity).Equal(local) {
		return notListed
	}

	schedule := day.Schedule
	if schedule.MaxSlotsPerDay == nil {
		return nil
	}
	if *schedule.MaxSlotsPerDay <= 0 || c.generator == nil {
		return notListed
	}

	tz := req.CustomerTimezone
	if tz == "" {
		tz = "UTC"
	}
	list, err := c.generator.Generate(ctx, slots.Query{
		ServiceID:        req.ServiceID,
		Date:             localDate,
		Timezone:         tz,
		StaffID:          req.StaffID,
		LocationID:       req.LocationID,
		Granularity:      req.Granularity,
		MinNotice:        c.policy.MinNotice,
		MaxBookingDays:   c.policy.MaxBookingDays,
		Actor:            req.Actor,
		ExcludeBookingID: req.ExcludeBookingID,
	})
	if err != nil {
		return err
	}

	want := start.Truncate(time.Minute)
	for _, s := range list {
		if s.StaffID == req.StaffID && s.Start.UTC().Truncate(time.Minute).Equal(want) {
			return nil
		}
	}
	return notListed
}

// containment requires the window to sit inside the day's free time and
// names the most specific reason when it does not.
func containment(day *calendar.Day, window interval.Interval) error {
	if len(day.Work) == 0 && len(day.Free) == 0 {
		return unavailable("Staff is not available on this day")
	}
	if interval.ContainedIn(day.Free, window) {
		return nil
	}
	switch {
	case interval.ContainedIn(day.Work, window) && interval.AnyOverlap(day.Breaks, window):
		return unavailable("Time overlaps a staff break")
	case interval.AnyOverlap(day.Blocked(), window):
		return unavailable("Staff is unavailable for this time")
	}
	return unavailable("Time is outside staff working hours")
}

// IsRejection reports whether err is a terminal business rejection rather
// than a store or programming failure.
func IsRejection(err error) bool {
	var rej *domain.RejectionError
	return errors.As(err, &rej) && !domain.Retryable(err)
}
