package repository

// Redis key layout.  Every per-slot key shares the slot:<id> prefix so a
// slot's sub-state can be watched and deleted as a unit.
const (
	openSlotsKey     = "open_slots"     // zset of open slot ids scored by work date
	allSlotsKey      = "all_slots"      // zset of every slot id scored by work date
	employeeIndexKey = "employee_index" // hash id_full -> employee id
)

func slotKey(id string) string         { return "slot:" + id }
func slotCountKey(id string) string    { return "slot:" + id + ":count" }
func slotBookingsKey(id string) string { return "slot:" + id + ":bookings" }
func slotMembersKey(id string) string  { return "slot:" + id + ":members" }
func employeeKey(id string) string     { return "employee:" + id }

// employeeLookupKey indexes employees by the (name, last4) pair used for
// lightweight re-identification at signup.
func employeeLookupKey(name, last4 string) string {
	return "employee_lookup:" + name + ":" + last4
}

// Canonical boolean encoding for hash fields.
func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeBool(s string) bool { return s == "1" }
