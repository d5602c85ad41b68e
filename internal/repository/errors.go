// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. Booking
// outcomes (closed, full, duplicate, busy) are terminal results of the
// ledger transaction and each maps to its own user-facing message.
package repository

import "errors"

// ErrSlotNotFound is returned when the slot hash does not exist.
var ErrSlotNotFound = errors.New("slot not found")

// ErrSlotClosed is returned when an admin has closed registration for
// the slot.
var ErrSlotClosed = errors.New("slot closed")

// ErrAlreadyBooked is returned when the identity already holds a booking
// for the slot.
var ErrAlreadyBooked = errors.New("already booked")

// ErrSlotFull is returned when the live counter has reached capacity.
// It is only reported after re-validation inside the transaction.
var ErrSlotFull = errors.New("slot full")

// ErrBusy is returned when the optimistic retry budget ran out because
// of concurrent writers. It does not mean the slot is full.
var ErrBusy = errors.New("system busy")

// ErrBookingNotFound is returned when no booking with the given
// reference exists for the slot.
var ErrBookingNotFound = errors.New("booking not found")

// ErrEmployeeNotFound is returned when an employee lookup has no match.
var ErrEmployeeNotFound = errors.New("employee not found")

// ErrAmbiguousEmployee is returned when more than one registered employee
// shares the same name and credential suffix.
var ErrAmbiguousEmployee = errors.New("ambiguous employee")

// ErrDuplicateCredential is returned when the full credential is already
// registered.
var ErrDuplicateCredential = errors.New("credential already registered")

// ErrUsernameExists is returned when an admin username is taken.
var ErrUsernameExists = errors.New("username already exists")

// ErrRefreshInvalid is returned for a refresh token that is unknown,
// revoked or expired.
var ErrRefreshInvalid = errors.New("refresh token invalid")
