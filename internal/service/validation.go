package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/shift-signup/internal/model"
)

// ValidationError reports a malformed input field.  Handlers render it as a
// 400 with the field name so the caller knows what to fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// ValidateName trims name and rejects it when nothing is left.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "must not be empty")
	}
	return name, nil
}

// ValidateLast4 requires exactly four ASCII digits.
func ValidateLast4(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 || !allDigits(s) {
		return "", invalid("id_last_4", "must be exactly 4 digits")
	}
	return s, nil
}

// ValidateCredential checks a full employee credential: 5 to 20 ASCII
// letters or digits, ending in four digits so the suffix can be used for
// signups.
func ValidateCredential(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || len(s) > 20 {
		return "", invalid("id_full", "must be 5 to 20 characters")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", invalid("id_full", "must contain only letters and digits")
		}
	}
	if !allDigits(s[len(s)-4:]) {
		return "", invalid("id_full", "must end in 4 digits")
	}
	return s, nil
}

// ValidateSlotInput normalizes and checks admin slot fields.
func ValidateSlotInput(in model.SlotInput) (model.SlotInput, error) {
	in.WorkDate = strings.TrimSpace(in.WorkDate)
	if _, err := time.Parse(time.DateOnly, in.WorkDate); err != nil {
		return in, invalid("work_date", "must be a date in YYYY-MM-DD format")
	}
	in.SlotName = strings.TrimSpace(in.SlotName)
	if in.SlotName == "" {
		return in, invalid("slot_name", "must not be empty")
	}
	if in.Capacity <= 0 {
		return in, invalid("capacity", "must be a positive integer")
	}
	return in, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
