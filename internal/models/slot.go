package models

import "time"

// Slot is one bookable start for a staff member, expressed in the customer's zone.
type Slot struct {
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
	StaffID   string    `json:"staff_id"`
	StaffName string    `json:"staff_name"`
}
