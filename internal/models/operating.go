package models

import (
	"fmt"
	"time"
)

// Cadence selects how an operating schedule decides its open hours.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// ParseCadence maps a stored tag onto the closed set.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return c, nil
	}
	return "", fmt.Errorf("unknown operating rule type %q", s)
}

// RuleKind is the closed set of operating rule matchers.
type RuleKind string

const (
	RuleWeekly            RuleKind = "weekly"
	RuleMonthlyDay        RuleKind = "monthly_day"
	RuleMonthlyNthWeekday RuleKind = "monthly_nth_weekday"
)

// ParseRuleKind maps a stored tag onto the closed set.
func ParseRuleKind(s string) (RuleKind, error) {
	switch k := RuleKind(s); k {
	case RuleWeekly, RuleMonthlyDay, RuleMonthlyNthWeekday:
		return k, nil
	}
	return "", fmt.Errorf("unknown operating rule kind %q", s)
}

// OperatingSchedule is a service's business-hours definition.
type OperatingSchedule struct {
	ID            string     `json:"id"`
	ServiceID     string     `json:"service_id"`
	Timezone      string     `json:"timezone"`
	Cadence       Cadence    `json:"rule_type"`
	OpenTime      *Clock     `json:"open_time,omitempty"`
	CloseTime     *Clock     `json:"close_time,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
}

// OperatingRule matches dates for weekly and monthly schedules.
type OperatingRule struct {
	ID         string        `json:"id"`
	ScheduleID string        `json:"schedule_id"`
	Kind       RuleKind      `json:"rule_type"`
	Weekday    *time.Weekday `json:"weekday,omitempty"`
	MonthDay   *int          `json:"month_day,omitempty"`
	Nth        *int          `json:"nth,omitempty"`
	Start      *Clock        `json:"start_time,omitempty"`
	End        *Clock        `json:"end_time,omitempty"`
}

// OperatingException replaces the operating hours of a single date.
type OperatingException struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	Date      time.Time `json:"date"`
	IsOpen    bool      `json:"is_open"`
	Start     *Clock    `json:"start_time,omitempty"`
	End       *Clock    `json:"end_time,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
