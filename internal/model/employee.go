package model

import "time"

// Employee is a self-registered identity.  IDFull is unique across all
// employees and is enforced through the employee_index reverse hash.
//
// Fields:
//  ID        – opaque identifier generated at registration.
//  Name      – display name.
//  IDFull    – full identity credential (e.g. national ID).
//  IDLast4   – last four characters of IDFull.
//  Phone     – contact number.
//  CreatedAt – registration timestamp.
type Employee struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IDFull    string    `json:"-"`
	IDLast4   string    `json:"id_last_4"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
