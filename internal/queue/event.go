// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// Queue names.  Each event type has its own durable queue on the default
// exchange.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
)

// BookingEvent is published after a booking is committed to or removed from
// a slot.  It carries enough slot detail for consumers to log or notify
// without reading Redis.
type BookingEvent struct {
	Type        string `json:"type"` // queue name the event was published to
	SlotID      string `json:"slot_id"`
	WorkDate    string `json:"work_date"`
	SlotName    string `json:"slot_name"`
	EmployeeRef string `json:"employee_id"`
	Name        string `json:"name"`
	IDLast4     string `json:"id_last_4"`
	At          string `json:"at"` // RFC 3339 UTC
}
