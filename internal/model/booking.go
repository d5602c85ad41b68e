package model

import "time"

// Booking is one identity's reservation of one slot.  Records are stored
// as JSON in the slot's booking list, so the json tags double as the
// storage encoding.
//
// Fields:
//  EmployeeRef – identity used for duplicate detection.  Either an
//                employee id (registry signups) or the name/suffix
//                reference built by NameRef.
//  Name        – name entered at signup.
//  IDLast4     – last four digits of the identity credential.
//  BookingTime – server-assigned commit time (UTC).
type Booking struct {
	EmployeeRef string    `json:"employee_id"`
	Name        string    `json:"name"`
	IDLast4     string    `json:"id_last_4"`
	BookingTime time.Time `json:"booking_time"`
}

// NameRef builds the employee reference used by signups that do not go
// through the employee registry.
func NameRef(name, last4 string) string {
	return name + "#" + last4
}
