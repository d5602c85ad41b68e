package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shift-signup/internal/model"
)

func TestAttemptBooksAndStampsTime(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	fixed := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }
	ctx := context.Background()
	id := mustCreateSlot(t, slots, "2026-11-01", true, 2)

	b, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "Alice#1234", Name: "Alice", IDLast4: "1234"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !b.BookingTime.Equal(fixed) {
		t.Errorf("expected booking time %v, got %v", fixed, b.BookingTime)
	}
	booked, err := rdb.SIsMember(ctx, slotMembersKey(id), "Alice#1234").Result()
	if err != nil || !booked {
		t.Fatalf("expected membership, got %v (%v)", booked, err)
	}
	list, err := slots.Bookings(ctx, id)
	if err != nil {
		t.Fatalf("bookings: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Alice" || list[0].IDLast4 != "1234" {
		t.Fatalf("unexpected records %+v", list)
	}
}

func TestAttemptDuplicateLeavesCounter(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	ctx := context.Background()
	id := mustCreateSlot(t, slots, "2026-11-01", true, 5)

	if _, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "A"}); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "A"}); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
	s, _ := slots.Get(ctx, id)
	if s.CurrentBookings != 1 {
		t.Fatalf("duplicate changed the counter: %d", s.CurrentBookings)
	}
}

func TestAttemptClosedSlot(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	id := mustCreateSlot(t, slots, "2026-11-01", false, 100)

	if _, err := ledger.Attempt(context.Background(), id, model.Booking{EmployeeRef: "A"}); !errors.Is(err, ErrSlotClosed) {
		t.Fatalf("expected ErrSlotClosed, got %v", err)
	}
}

func TestAttemptMissingSlot(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewBookingRepo(rdb, testPolicy)
	if _, err := ledger.Attempt(context.Background(), "ghost", model.Booking{EmployeeRef: "A"}); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestAttemptFull(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	ctx := context.Background()
	id := mustCreateSlot(t, slots, "2026-11-01", true, 1)

	if _, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "A"}); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "B"}); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull, got %v", err)
	}
}

func TestCancelThenRebook(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	ctx := context.Background()
	id := mustCreateSlot(t, slots, "2026-11-01", true, 1)

	if _, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "A", Name: "Ann"}); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	removed, err := ledger.Cancel(ctx, id, "A")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed.Name != "Ann" {
		t.Errorf("expected removed record for Ann, got %+v", removed)
	}
	s, _ := slots.Get(ctx, id)
	if s.CurrentBookings != 0 {
		t.Fatalf("expected counter released, got %d", s.CurrentBookings)
	}
	if _, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "A"}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestCancelUnknownRef(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	ctx := context.Background()
	id := mustCreateSlot(t, slots, "2026-11-01", true, 1)

	if _, err := ledger.Cancel(ctx, id, "nobody"); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	s, _ := slots.Get(ctx, id)
	if s.CurrentBookings != 0 {
		t.Fatalf("counter moved on failed cancel: %d", s.CurrentBookings)
	}
}

// Two identities race for the last place: exactly one wins.
func TestConcurrentLastPlace(t *testing.T) {
	for round := 0; round < 20; round++ {
		_, rdb := newTestRedis(t)
		slots := NewSlotRepo(rdb)
		ledger := NewBookingRepo(rdb, testPolicy)
		id := mustCreateSlot(t, slots, "2026-11-01", true, 1)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, ref := range []string{"A", "B"} {
			wg.Add(1)
			go func(i int, ref string) {
				defer wg.Done()
				_, errs[i] = ledger.Attempt(context.Background(), id, model.Booking{EmployeeRef: ref})
			}(i, ref)
		}
		wg.Wait()

		booked, full := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrSlotFull):
				full++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if booked != 1 || full != 1 {
			t.Fatalf("round %d: expected one booked and one full, got %d/%d", round, booked, full)
		}
	}
}

func TestConcurrentSignupsNeverExceedCapacity(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	ctx := context.Background()
	const capacity, callers = 5, 50
	id := mustCreateSlot(t, slots, "2026-11-01", true, capacity)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		booked, full int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: fmt.Sprintf("emp-%d", i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrSlotFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if booked != capacity || full != callers-capacity {
		t.Fatalf("expected %d booked and %d full, got %d/%d", capacity, callers-capacity, booked, full)
	}
	s, _ := slots.Get(ctx, id)
	list, _ := slots.Bookings(ctx, id)
	members, _ := rdb.SCard(ctx, slotMembersKey(id)).Result()
	if s.CurrentBookings != capacity || len(list) != capacity || members != capacity {
		t.Fatalf("ledger out of sync: count=%d list=%d members=%d", s.CurrentBookings, len(list), members)
	}
}

func TestConcurrentDuplicateBooksOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	slots := NewSlotRepo(rdb)
	ledger := NewBookingRepo(rdb, testPolicy)
	ctx := context.Background()
	id := mustCreateSlot(t, slots, "2026-11-01", true, 10)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Attempt(ctx, id, model.Booking{EmployeeRef: "same"})
			if err != nil && !errors.Is(err, ErrAlreadyBooked) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one booking, got %d", wins)
	}
}

func TestRetryPolicyExhaustionIsBusy(t *testing.T) {
	_, rdb := newTestRedis(t)
	calls := 0
	p := RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}
	err := p.run(context.Background(), rdb, func(*redis.Tx) error {
		calls++
		return redis.TxFailedErr
	}, "k")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 100, Base: time.Second, Max: time.Second}
	err := p.run(ctx, rdb, func(*redis.Tx) error {
		cancel()
		return redis.TxFailedErr
	}, "k")
	if !errors.Is(err, ErrBusy) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected busy wrapping context.Canceled, got %v", err)
	}
}

func TestRetryPolicyPassesThroughOtherErrors(t *testing.T) {
	_, rdb := newTestRedis(t)
	err := testPolicy.run(context.Background(), rdb, func(*redis.Tx) error { return ErrSlotFull }, "k")
	if !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull, got %v", err)
	}
}
