// Package catalog loads the service and staff catalog from YAML and writes it
// into the store.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"slotbook/internal/models"
)

type Catalog struct {
	Services []ServiceEntry `yaml:"services"`
	Staff    []StaffEntry   `yaml:"staff"`
}

type ServiceEntry struct {
	models.Service `yaml:",inline"`
	Operating      *OperatingEntry `yaml:"operating"`
}

// OperatingEntry describes business hours. Daily schedules use open/close;
// weekly and monthly ones list rules.
type OperatingEntry struct {
	ID            string      `yaml:"id"`
	Timezone      string      `yaml:"timezone"`
	Cadence       string      `yaml:"rule_type"`
	OpenTime      string      `yaml:"open_time"`
	CloseTime     string      `yaml:"close_time"`
	EffectiveFrom string      `yaml:"effective_from"`
	EffectiveTo   string      `yaml:"effective_to"`
	Rules         []RuleEntry `yaml:"rules"`
}

type RuleEntry struct {
	Kind     string `yaml:"rule_type"`
	Weekday  string `yaml:"weekday"`
	MonthDay *int   `yaml:"month_day"`
	Nth      *int   `yaml:"nth"`
	Start    string `yaml:"start_time"`
	End      string `yaml:"end_time"`
}

type StaffEntry struct {
	models.Staff `yaml:",inline"`
	Services     []AssignmentEntry `yaml:"services"`
	Schedules    []ScheduleEntry   `yaml:"schedules"`
}

type AssignmentEntry struct {
	ServiceID                string `yaml:"service_id"`
	DurationOverride         *int   `yaml:"duration_override"`
	BufferOverride           *int   `yaml:"buffer_override"`
	CapacityOverride         *int   `yaml:"capacity_override"`
	IsBookable               *bool  `yaml:"is_bookable"`
	IsTemporarilyUnavailable bool   `yaml:"is_temporarily_unavailable"`
	AdminOnly                bool   `yaml:"admin_only"`
}

// ScheduleEntry is a weekly schedule. Week and Breaks map weekday names to
// "HH:MM-HH:MM" ranges.
type ScheduleEntry struct {
	ID                     string              `yaml:"id"`
	LocationID             string              `yaml:"location_id"`
	Timezone               string              `yaml:"timezone"`
	EffectiveFrom          string              `yaml:"effective_from"`
	EffectiveTo            string              `yaml:"effective_to"`
	IsDefault              bool                `yaml:"is_default"`
	MaxSlotsPerDay         *int                `yaml:"max_slots_per_day"`
	MaxBookingsPerDay      *int                `yaml:"max_bookings_per_day"`
	MaxBookingsPerCustomer *int                `yaml:"max_bookings_per_customer"`
	Week                   map[string][]string `yaml:"week"`
	Breaks                 map[string][]string `yaml:"breaks"`
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks references and converts every time value once so that
// Apply cannot fail halfway on bad input.
func (c *Catalog) Validate() error {
	services := make(map[string]bool, len(c.Services))
	for i := range c.Services {
		svc := &c.Services[i]
		if svc.ID == "" || svc.Name == "" {
			return fmt.Errorf("service #%d: id and name are required", i+1)
		}
		if services[svc.ID] {
			return fmt.Errorf("service %s: duplicate id", svc.ID)
		}
		services[svc.ID] = true
		if svc.DurationMinutes <= 0 {
			return fmt.Errorf("service %s: duration_minutes must be positive", svc.ID)
		}
		if svc.BufferMinutes < 0 || svc.MaxCapacity < 0 {
			return fmt.Errorf("service %s: buffer_minutes and max_capacity must not be negative", svc.ID)
		}
		if svc.Operating != nil {
			if _, _, err := svc.Operating.build(svc.ID); err != nil {
				return fmt.Errorf("service %s: %w", svc.ID, err)
			}
		}
	}

	staff := make(map[string]bool, len(c.Staff))
	for i := range c.Staff {
		st := &c.Staff[i]
		if st.ID == "" || st.FullName == "" {
			return fmt.Errorf("staff #%d: id and full_name are required", i+1)
		}
		if staff[st.ID] {
			return fmt.Errorf("staff %s: duplicate id", st.ID)
		}
		staff[st.ID] = true
		for _, a := range st.Services {
			if !services[a.ServiceID] {
				return fmt.Errorf("staff %s: unknown service %q", st.ID, a.ServiceID)
			}
		}
		for j := range st.Schedules {
			if _, _, _, err := st.Schedules[j].build(st.ID); err != nil {
				return fmt.Errorf("staff %s schedule #%d: %w", st.ID, j+1, err)
			}
		}
	}
	return nil
}

func (e *OperatingEntry) build(serviceID string) (*models.OperatingSchedule, []models.OperatingRule, error) {
	cadence, err := models.ParseCadence(e.Cadence)
	if err != nil {
		return nil, nil, err
	}
	if e.Timezone != "" {
		if _, err := time.LoadLocation(e.Timezone); err != nil {
			return nil, nil, fmt.Errorf("invalid timezone %q", e.Timezone)
		}
	}

	s := &models.OperatingSchedule{
		ID:        e.ID,
		ServiceID: serviceID,
		Timezone:  e.Timezone,
		Cadence:   cadence,
		IsActive:  true,
	}
	if s.OpenTime, err = models.ParseClockPtr(e.OpenTime); err != nil {
		return nil, nil, err
	}
	if s.CloseTime, err = models.ParseClockPtr(e.CloseTime); err != nil {
		return nil, nil, err
	}
	if cadence == models.CadenceDaily && (s.OpenTime == nil || s.CloseTime == nil) {
		return nil, nil, fmt.Errorf("daily operating schedule needs open_time and close_time")
	}
	if s.EffectiveFrom, err = optionalDate(e.EffectiveFrom); err != nil {
		return nil, nil, err
	}
	if s.EffectiveTo, err = optionalDate(e.EffectiveTo); err != nil {
		return nil, nil, err
	}

	rules := make([]models.OperatingRule, 0, len(e.Rules))
	for _, re := range e.Rules {
		kind, err := models.ParseRuleKind(re.Kind)
		if err != nil {
			return nil, nil, err
		}
		r := models.OperatingRule{Kind: kind, MonthDay: re.MonthDay, Nth: re.Nth}
		if re.Weekday != "" {
			wd, err := parseWeekday(re.Weekday)
			if err != nil {
				return nil, nil, err
			}
			r.Weekday = &wd
		}
		if r.Start, err = models.ParseClockPtr(re.Start); err != nil {
			return nil, nil, err
		}
		if r.End, err = models.ParseClockPtr(re.End); err != nil {
			return nil, nil, err
		}
		rules = append(rules, r)
	}
	return s, rules, nil
}

func (e *ScheduleEntry) build(staffID string) (*models.WeeklySchedule, []models.TimeBlock, []models.TimeBlock, error) {
	tz := e.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid timezone %q", tz)
	}

	s := &models.WeeklySchedule{
		ID:                     e.ID,
		StaffID:                staffID,
		LocationID:             e.LocationID,
		Timezone:               tz,
		IsDefault:              e.IsDefault,
		MaxSlotsPerDay:         e.MaxSlotsPerDay,
		MaxBookingsPerDay:      e.MaxBookingsPerDay,
		MaxBookingsPerCustomer: e.MaxBookingsPerCustomer,
	}
	var err error
	if s.EffectiveFrom, err = optionalDate(e.EffectiveFrom); err != nil {
		return nil, nil, nil, err
	}
	if s.EffectiveTo, err = optionalDate(e.EffectiveTo); err != nil {
		return nil, nil, nil, err
	}

	work, err := blocks(e.Week)
	if err != nil {
		return nil, nil, nil, err
	}
	breaks, err := blocks(e.Breaks)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, work, breaks, nil
}

func blocks(week map[string][]string) ([]models.TimeBlock, error) {
	var out []models.TimeBlock
	for day, ranges := range week {
		wd, err := parseWeekday(day)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			from, to, ok := strings.Cut(r, "-")
			if !ok {
				return nil, fmt.Errorf("invalid range %q, want HH:MM-HH:MM", r)
			}
			start, err := models.ParseClock(strings.TrimSpace(from))
			if err != nil {
				return nil, err
			}
			end, err := models.ParseClock(strings.TrimSpace(to))
			if err != nil {
				return nil, err
			}
			if end.Minutes() <= start.Minutes() {
				return nil, fmt.Errorf("range %q ends before it starts", r)
			}
			out = append(out, models.TimeBlock{Weekday: wd, Start: start, End: end})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Start.Minutes() < out[j].Start.Minutes()
	})
	return out, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdays[name]; ok {
		return wd, nil
	}
	for full, wd := range weekdays {
		if len(name) == 3 && strings.HasPrefix(full, name) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func optionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := models.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &d, nil
}
