package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/models"
)

// Store is the write side of the catalog tables.
type Store interface {
	UpsertService(ctx context.Context, svc *models.Service) error
	UpsertStaff(ctx context.Context, st *models.Staff) error
	UpsertStaffService(ctx context.Context, a *models.StaffService) error
	ListWeeklySchedules(ctx context.Context, staffID string, date time.Time) ([]models.WeeklySchedule, error)
	CreateWeeklySchedule(ctx context.Context, s *models.WeeklySchedule, work, breaks []models.TimeBlock) error
	LatestOperatingSchedule(ctx context.Context, serviceID string, date time.Time) (*models.OperatingSchedule, error)
	CreateOperatingSchedule(ctx context.Context, s *models.OperatingSchedule, rules []models.OperatingRule) error
}

// Result counts what Apply wrote.
type Result struct {
	Services           int
	Staff              int
	Assignments        int
	Schedules          int
	OperatingSchedules int
	Skipped            int
}

// Apply upserts services, staff and assignments. Schedules carrying an id are
// created once; a schedule whose id is already live is skipped, so reapplying
// the same file is safe.
func Apply(ctx context.Context, store Store, c *Catalog, now time.Time, logger *zerolog.Logger) (Result, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	var res Result
	today := models.DateOf(now)

	for i := range c.Services {
		entry := &c.Services[i]
		svc := entry.Service
		if err := store.UpsertService(ctx, &svc); err != nil {
			return res, fmt.Errorf("upsert service %s: %w", svc.ID, err)
		}
		res.Services++

		if entry.Operating == nil {
			continue
		}
		schedule, rules, err := entry.Operating.build(svc.ID)
		if err != nil {
			return res, fmt.Errorf("service %s: %w", svc.ID, err)
		}
		if schedule.ID != "" {
			current, err := store.LatestOperatingSchedule(ctx, svc.ID, probeDate(schedule.EffectiveFrom, today))
			if err != nil {
				return res, fmt.Errorf("load operating schedule for %s: %w", svc.ID, err)
			}
			if current != nil && current.ID == schedule.ID {
				res.Skipped++
				continue
			}
		}
		if err := store.CreateOperatingSchedule(ctx, schedule, rules); err != nil {
			return res, fmt.Errorf("create operating schedule for %s: %w", svc.ID, err)
		}
		res.OperatingSchedules++
	}

	for i := range c.Staff {
		entry := &c.Staff[i]
		st := entry.Staff
		if err := store.UpsertStaff(ctx, &st); err != nil {
			return res, fmt.Errorf("upsert staff %s: %w", st.ID, err)
		}
		res.Staff++

		for _, a := range entry.Services {
			assignment := models.StaffService{
				StaffID:                  st.ID,
				ServiceID:                a.ServiceID,
				DurationOverride:         a.DurationOverride,
				BufferOverride:           a.BufferOverride,
				CapacityOverride:         a.CapacityOverride,
				IsBookable:               a.IsBookable == nil || *a.IsBookable,
				IsTemporarilyUnavailable: a.IsTemporarilyUnavailable,
				AdminOnly:                a.AdminOnly,
			}
			if err := store.UpsertStaffService(ctx, &assignment); err != nil {
				return res, fmt.Errorf("assign %s to %s: %w", st.ID, a.ServiceID, err)
			}
			res.Assignments++
		}

		for j := range entry.Schedules {
			schedule, work, breaks, err := entry.Schedules[j].build(st.ID)
			if err != nil {
				return res, fmt.Errorf("staff %s: %w", st.ID, err)
			}
			if schedule.ID != "" {
				exists, err := hasSchedule(ctx, store, st.ID, schedule.ID, probeDate(schedule.EffectiveFrom, today))
				if err != nil {
					return res, err
				}
				if exists {
					res.Skipped++
					continue
				}
			}
			if err := store.CreateWeeklySchedule(ctx, schedule, work, breaks); err != nil {
				return res, fmt.Errorf("create schedule for %s: %w", st.ID, err)
			}
			res.Schedules++
		}
	}

	logger.Info().
		Int("services", res.Services).
		Int("staff", res.Staff).
		Int("assignments", res.Assignments).
		Int("schedules", res.Schedules).
		Int("operating_schedules", res.OperatingSchedules).
		Int("skipped", res.Skipped).
		Msg("Catalog applied")
	return res, nil
}

func hasSchedule(ctx context.Context, store Store, staffID, id string, date time.Time) (bool, error) {
	list, err := store.ListWeeklySchedules(ctx, staffID, date)
	if err != nil {
		return false, fmt.Errorf("list schedules for %s: %w", staffID, err)
	}
	for _, s := range list {
		if s.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func probeDate(from *time.Time, today time.Time) time.Time {
	if from != nil && from.After(today) {
		return *from
	}
	return today
}
