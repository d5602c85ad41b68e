// Package service holds the signup and slot administration workflows that
// sit between the HTTP handlers and the Redis repositories.
package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/shift-signup/internal/model"
	"github.com/iliyamo/shift-signup/internal/queue"
	"github.com/iliyamo/shift-signup/internal/repository"
)

// publishTimeout bounds a single background event publish.
const publishTimeout = 5 * time.Second

// BookingService validates requests, drives the booking ledger and emits
// booking events.  After every successful mutation it calls OnChange, which
// the server uses to purge cached public listings.
type BookingService struct {
	Slots     *repository.SlotRepo
	Bookings  *repository.BookingRepo
	Employees *repository.EmployeeRepo
	Events    EventPublisher
	OnChange  func(ctx context.Context)

	wg sync.WaitGroup
}

// NewBookingService wires the service.  A nil publisher disables events.
func NewBookingService(slots *repository.SlotRepo, bookings *repository.BookingRepo, employees *repository.EmployeeRepo, events EventPublisher) *BookingService {
	if events == nil {
		events = NopPublisher{}
	}
	return &BookingService{Slots: slots, Bookings: bookings, Employees: employees, Events: events}
}

// SignupResult is what a successful signup reports back: the stored record
// and the slot it landed in.
type SignupResult struct {
	Slot    model.Slot    `json:"slot"`
	Booking model.Booking `json:"booking"`
}

// Signup books a slot for a person identified by name and credential suffix
// without consulting the employee registry.
func (s *BookingService) Signup(ctx context.Context, slotID, name, last4 string) (SignupResult, error) {
	name, err := ValidateName(name)
	if err != nil {
		return SignupResult{}, err
	}
	if last4, err = ValidateLast4(last4); err != nil {
		return SignupResult{}, err
	}
	return s.book(ctx, slotID, model.Booking{EmployeeRef: model.NameRef(name, last4), Name: name, IDLast4: last4})
}

// EmployeeSignup books a slot for a registered employee.  The employee is
// resolved by full credential when idFull is set, otherwise by name and
// suffix.  The booking is keyed by the employee id, so the same person
// cannot book twice under different spellings.
func (s *BookingService) EmployeeSignup(ctx context.Context, slotID, name, last4, idFull string) (SignupResult, error) {
	name, err := ValidateName(name)
	if err != nil {
		return SignupResult{}, err
	}

	var empID string
	if idFull != "" {
		if idFull, err = ValidateCredential(idFull); err != nil {
			return SignupResult{}, err
		}
		if empID, err = s.Employees.FindByCredential(ctx, idFull); err != nil {
			return SignupResult{}, err
		}
	} else {
		if last4, err = ValidateLast4(last4); err != nil {
			return SignupResult{}, err
		}
		if empID, err = s.Employees.FindByNameAndLast4(ctx, name, last4); err != nil {
			return SignupResult{}, err
		}
	}

	emp, err := s.Employees.Get(ctx, empID)
	if err != nil {
		return SignupResult{}, err
	}
	// A credential match under someone else's name is treated as unknown.
	if emp.Name != name {
		return SignupResult{}, repository.ErrEmployeeNotFound
	}
	return s.book(ctx, slotID, model.Booking{EmployeeRef: emp.ID, Name: emp.Name, IDLast4: emp.IDLast4})
}

func (s *BookingService) book(ctx context.Context, slotID string, rec model.Booking) (SignupResult, error) {
	b, err := s.Bookings.Attempt(ctx, slotID, rec)
	if err != nil {
		if !isRejection(err) {
			log.Printf("signup failed slot=%s ref=%s err=%v", slotID, rec.EmployeeRef, err)
		}
		return SignupResult{}, err
	}
	slot, err := s.Slots.Get(ctx, slotID)
	if err != nil {
		// Committed, but the slot vanished right after; report what we know.
		slot = model.Slot{ID: slotID}
	}
	log.Printf("booking confirmed slot=%s ref=%s", slotID, b.EmployeeRef)
	s.changed(ctx)
	s.publish(ctx, queue.BookingConfirmedQueue, slot, b)
	return SignupResult{Slot: slot, Booking: b}, nil
}

// RegisterEmployee adds an employee to the registry and returns the id.
func (s *BookingService) RegisterEmployee(ctx context.Context, name, idFull, phone string) (string, error) {
	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	if idFull, err = ValidateCredential(idFull); err != nil {
		return "", err
	}
	id, err := s.Employees.Register(ctx, name, idFull, phone)
	if err != nil {
		return "", err
	}
	log.Printf("employee registered id=%s", id)
	return id, nil
}

// OpenSlots lists the slots accepting signups, earliest date first.
func (s *BookingService) OpenSlots(ctx context.Context) ([]model.Slot, error) {
	return s.Slots.ListOpen(ctx)
}

// Slot returns a single slot with its live counter.
func (s *BookingService) Slot(ctx context.Context, id string) (model.Slot, error) {
	return s.Slots.Get(ctx, id)
}

// AllSlots lists every slot for the admin dashboard.
func (s *BookingService) AllSlots(ctx context.Context, preview int) ([]model.Slot, error) {
	return s.Slots.ListAll(ctx, preview)
}

// SlotBookings returns a slot's bookings in commit order.
func (s *BookingService) SlotBookings(ctx context.Context, id string) ([]model.Booking, error) {
	return s.Slots.Bookings(ctx, id)
}

// CreateSlot validates and stores a new slot.
func (s *BookingService) CreateSlot(ctx context.Context, in model.SlotInput) (model.Slot, error) {
	in, err := ValidateSlotInput(in)
	if err != nil {
		return model.Slot{}, err
	}
	id, err := s.Slots.Create(ctx, in)
	if err != nil {
		return model.Slot{}, err
	}
	log.Printf("slot created id=%s date=%s name=%q open=%t capacity=%d", id, in.WorkDate, in.SlotName, in.IsOpen, in.Capacity)
	s.changed(ctx)
	return s.Slots.Get(ctx, id)
}

// UpdateSlot replaces a slot's metadata.  Lowering the capacity below the
// current bookings keeps them; the slot just stops accepting new ones.
func (s *BookingService) UpdateSlot(ctx context.Context, id string, in model.SlotInput) (model.Slot, error) {
	in, err := ValidateSlotInput(in)
	if err != nil {
		return model.Slot{}, err
	}
	if err := s.Slots.Update(ctx, id, in); err != nil {
		return model.Slot{}, err
	}
	log.Printf("slot updated id=%s date=%s open=%t capacity=%d", id, in.WorkDate, in.IsOpen, in.Capacity)
	s.changed(ctx)
	return s.Slots.Get(ctx, id)
}

// DeleteSlot removes a slot together with all of its bookings.
func (s *BookingService) DeleteSlot(ctx context.Context, id string) error {
	if err := s.Slots.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("slot deleted id=%s", id)
	s.changed(ctx)
	return nil
}

// CancelBooking removes the booking held by ref, freeing its place.
func (s *BookingService) CancelBooking(ctx context.Context, slotID, ref string) (model.Booking, error) {
	b, err := s.Bookings.Cancel(ctx, slotID, ref)
	if err != nil {
		return model.Booking{}, err
	}
	slot, err := s.Slots.Get(ctx, slotID)
	if err != nil {
		slot = model.Slot{ID: slotID}
	}
	log.Printf("booking cancelled slot=%s ref=%s", slotID, ref)
	s.changed(ctx)
	s.publish(ctx, queue.BookingCancelledQueue, slot, b)
	return b, nil
}

// Wait blocks until in-flight event publishes finish.
func (s *BookingService) Wait() { s.wg.Wait() }

func (s *BookingService) changed(ctx context.Context) {
	if s.OnChange != nil {
		s.OnChange(ctx)
	}
}

// publish sends the event in the background; a broker outage must not fail
// a committed booking.
func (s *BookingService) publish(ctx context.Context, typ string, slot model.Slot, b model.Booking) {
	ev := queue.BookingEvent{
		Type:        typ,
		SlotID:      slot.ID,
		WorkDate:    slot.WorkDate,
		SlotName:    slot.SlotName,
		EmployeeRef: b.EmployeeRef,
		Name:        b.Name,
		IDLast4:     b.IDLast4,
		At:          time.Now().UTC().Format(time.RFC3339),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.Events.Publish(pctx, ev); err != nil {
			log.Printf("event publish failed type=%s slot=%s err=%v", typ, ev.SlotID, err)
		}
	}()
}

// isRejection reports whether err is an expected booking outcome rather
// than a storage failure.
func isRejection(err error) bool {
	for _, target := range []error{
		repository.ErrSlotNotFound, repository.ErrSlotClosed,
		repository.ErrAlreadyBooked, repository.ErrSlotFull,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
