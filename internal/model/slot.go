package model

import "time"

// Slot represents a bookable work shift.  The metadata lives in the
// `slot:<id>` hash; CurrentBookings is read from the slot's counter key
// and Bookings from its ordered booking list.  A slot only accepts new
// bookings while IsOpen is true and CurrentBookings is below Capacity.
//
// Fields:
//  ID              – opaque identifier assigned at creation.
//  WorkDate        – calendar date of the shift (YYYY-MM-DD).
//  SlotName        – display label such as "08:00-12:00".
//  IsOpen          – whether signups are accepted and the slot is listed.
//  Capacity        – maximum number of bookings.
//  CurrentBookings – live booking counter.
//  Bookings        – booking records in commit order (admin views only).
//  CreatedAt       – creation timestamp.
type Slot struct {
	ID              string    `json:"id"`
	WorkDate        string    `json:"work_date"`
	SlotName        string    `json:"slot_name"`
	IsOpen          bool      `json:"is_open"`
	Capacity        int       `json:"capacity"`
	CurrentBookings int       `json:"current_bookings"`
	Bookings        []Booking `json:"bookings,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Remaining returns how many bookings the slot can still accept.  It is
// never negative, even when an admin lowered the capacity below the
// number of existing bookings.
func (s Slot) Remaining() int {
	if s.CurrentBookings >= s.Capacity {
		return 0
	}
	return s.Capacity - s.CurrentBookings
}

// SlotInput carries the admin-editable fields of a slot.
type SlotInput struct {
	WorkDate string
	SlotName string
	IsOpen   bool
	Capacity int
}
