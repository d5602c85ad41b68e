package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/shift-signup/internal/model"
)

// BookingRepo is the booking ledger.  Per slot it maintains a counter
// (slot:<id>:count), a membership set of employee references
// (slot:<id>:members) and the ordered list of booking records
// (slot:<id>:bookings).  The three keys only ever change together inside
// one MULTI/EXEC, guarded by WATCH, so concurrent signups can neither
// exceed capacity nor book the same reference twice.  Contention is scoped
// to a single slot's keys; different slots never coordinate.
type BookingRepo struct {
	rdb    redis.UniversalClient
	policy RetryPolicy
	now    func() time.Time
	tracer trace.Tracer
}

// NewBookingRepo returns a ledger bound to rdb whose optimistic retries are
// bounded by policy.
func NewBookingRepo(rdb redis.UniversalClient, policy RetryPolicy) *BookingRepo {
	return &BookingRepo{
		rdb:    rdb,
		policy: policy,
		now:    time.Now,
		tracer: otel.Tracer("github.com/iliyamo/shift-signup/internal/repository"),
	}
}

// Attempt books rec.EmployeeRef onto the slot.  On success it returns the
// stored record with its server-assigned BookingTime.  Failures are
// ErrSlotNotFound, ErrSlotClosed, ErrAlreadyBooked, ErrSlotFull (all
// re-validated against live data) or ErrBusy when the retry budget ran out.
func (r *BookingRepo) Attempt(ctx context.Context, slotID string, rec model.Booking) (model.Booking, error) {
	ctx, span := r.tracer.Start(ctx, "booking.attempt", trace.WithAttributes(attribute.String("slot.id", slotID)))
	defer span.End()

	ref := rec.EmployeeRef
	key, countKey, membersKey := slotKey(slotID), slotCountKey(slotID), slotMembersKey(slotID)

	// Fast rejections before any transaction is attempted.
	h, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return model.Booking{}, traceErr(span, err)
	}
	if len(h) == 0 {
		return model.Booking{}, traceErr(span, ErrSlotNotFound)
	}
	if !decodeBool(h["is_open"]) {
		return model.Booking{}, traceErr(span, ErrSlotClosed)
	}
	member, err := r.rdb.SIsMember(ctx, membersKey, ref).Result()
	if err != nil {
		return model.Booking{}, traceErr(span, err)
	}
	if member {
		return model.Booking{}, traceErr(span, ErrAlreadyBooked)
	}

	attempts := 0
	txf := func(tx *redis.Tx) error {
		attempts++
		// Everything below is re-read under WATCH; the pre-checks above
		// may already be stale.
		h, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return ErrSlotNotFound
		}
		if !decodeBool(h["is_open"]) {
			return ErrSlotClosed
		}
		capacity, err := strconv.Atoi(h["capacity"])
		if err != nil {
			return fmt.Errorf("slot %s: bad capacity %q", slotID, h["capacity"])
		}
		count, err := tx.Get(ctx, countKey).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		member, err := tx.SIsMember(ctx, membersKey, ref).Result()
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyBooked
		}
		if count >= capacity {
			return ErrSlotFull
		}

		rec.BookingTime = r.now().UTC()
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, countKey)
			pipe.RPush(ctx, slotBookingsKey(slotID), payload)
			pipe.SAdd(ctx, membersKey, ref)
			return nil
		})
		return err
	}

	err = r.policy.run(ctx, r.rdb, txf, key, countKey, membersKey)
	span.SetAttributes(attribute.Int("booking.attempts", attempts))
	if err != nil {
		return model.Booking{}, traceErr(span, err)
	}
	return rec, nil
}

// Cancel removes the booking held by ref.  The record, the membership entry
// and one unit of the counter are removed in a single MULTI/EXEC, so the
// counter cannot drift from the list.  ErrBookingNotFound is returned when
// ref holds no booking for the slot.
func (r *BookingRepo) Cancel(ctx context.Context, slotID, ref string) (model.Booking, error) {
	ctx, span := r.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.String("slot.id", slotID)))
	defer span.End()

	bookingsKey, membersKey, countKey := slotBookingsKey(slotID), slotMembersKey(slotID), slotCountKey(slotID)
	var removed model.Booking
	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, bookingsKey, 0, -1).Result()
		if err != nil {
			return err
		}
		// LREM needs the exact stored bytes, so match on the raw element
		// rather than re-encoding the decoded record.
		target := ""
		for _, s := range raw {
			var b model.Booking
			if err := json.Unmarshal([]byte(s), &b); err != nil {
				continue
			}
			if b.EmployeeRef == ref {
				target, removed = s, b
				break
			}
		}
		if target == "" {
			return ErrBookingNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, bookingsKey, 1, target)
			pipe.SRem(ctx, membersKey, ref)
			pipe.Decr(ctx, countKey)
			return nil
		})
		return err
	}
	if err := r.policy.run(ctx, r.rdb, txf, bookingsKey, membersKey, countKey); err != nil {
		return model.Booking{}, traceErr(span, err)
	}
	return removed, nil
}

// traceErr records err on the span and returns it unchanged.  Expected
// booking outcomes are recorded as events, not span errors.
func traceErr(span trace.Span, err error) error {
	switch {
	case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrSlotClosed),
		errors.Is(err, ErrAlreadyBooked), errors.Is(err, ErrSlotFull),
		errors.Is(err, ErrBookingNotFound):
		span.AddEvent("booking.rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
