package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shift-signup/internal/model"
)

// SlotRepo manages slot metadata and the date-ordered slot indexes in Redis.
// Booking state (counter, list, members) is owned by BookingRepo; SlotRepo
// only initializes it on create, reads it for listings and removes it on
// delete.
type SlotRepo struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewSlotRepo returns a SlotRepo bound to the given Redis client.
func NewSlotRepo(rdb redis.UniversalClient) *SlotRepo {
	return &SlotRepo{rdb: rdb, now: time.Now}
}

// dateScore converts a YYYY-MM-DD work date into the index score: the unix
// seconds of that day's UTC midnight.  Slots sharing a date are ordered by
// id, which is how Redis orders equal scores.
func dateScore(workDate string) (float64, error) {
	t, err := time.Parse(time.DateOnly, workDate)
	if err != nil {
		return 0, fmt.Errorf("invalid work date %q: %w", workDate, err)
	}
	return float64(t.Unix()), nil
}

// Create stores a new slot and returns its id.  Metadata, a zero counter and
// the index entries are written in one MULTI/EXEC; the slot enters the open
// index only when it is open.
func (r *SlotRepo) Create(ctx context.Context, in model.SlotInput) (string, error) {
	score, err := dateScore(in.WorkDate)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	fields := slotFields(in)
	fields["created_at"] = r.now().UTC().Format(time.RFC3339Nano)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, slotKey(id), fields)
		pipe.SetNX(ctx, slotCountKey(id), 0, 0)
		pipe.ZAdd(ctx, allSlotsKey, redis.Z{Score: score, Member: id})
		if in.IsOpen {
			pipe.ZAdd(ctx, openSlotsKey, redis.Z{Score: score, Member: id})
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create slot: %w", err)
	}
	return id, nil
}

// Update overwrites the slot's metadata and re-indexes it under its new
// date.  Closing a slot removes it from the open index; reopening re-adds
// it.  Existing bookings are left untouched even when the new capacity is
// below the current count.  A missing slot yields ErrSlotNotFound; the
// existence check is watched so a concurrent delete cannot be undone.
func (r *SlotRepo) Update(ctx context.Context, id string, in model.SlotInput) error {
	score, err := dateScore(in.WorkDate)
	if err != nil {
		return err
	}
	key := slotKey(id)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrSlotNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, slotFields(in))
			pipe.ZAdd(ctx, allSlotsKey, redis.Z{Score: score, Member: id})
			if in.IsOpen {
				pipe.ZAdd(ctx, openSlotsKey, redis.Z{Score: score, Member: id})
			} else {
				pipe.ZRem(ctx, openSlotsKey, id)
			}
			return nil
		})
		return err
	}
	return metadataPolicy.run(ctx, r.rdb, txf, key)
}

// Delete removes the slot and every trace of its bookings.  Deleting a slot
// that does not exist is a no-op.
func (r *SlotRepo) Delete(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, slotKey(id), slotCountKey(id), slotBookingsKey(id), slotMembersKey(id))
		pipe.ZRem(ctx, openSlotsKey, id)
		pipe.ZRem(ctx, allSlotsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	return nil
}

// Get returns the slot with its live booking counter.
func (r *SlotRepo) Get(ctx context.Context, id string) (model.Slot, error) {
	h, err := r.rdb.HGetAll(ctx, slotKey(id)).Result()
	if err != nil {
		return model.Slot{}, err
	}
	if len(h) == 0 {
		return model.Slot{}, ErrSlotNotFound
	}
	count, err := r.rdb.Get(ctx, slotCountKey(id)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.Slot{}, err
	}
	return decodeSlot(id, h, count)
}

// ListOpen returns the open slots ordered by work date ascending.
func (r *SlotRepo) ListOpen(ctx context.Context) ([]model.Slot, error) {
	slots, err := r.list(ctx, openSlotsKey, 0)
	if err != nil {
		return nil, err
	}
	out := slots[:0]
	for _, s := range slots {
		if s.IsOpen {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListAll returns every slot, open or closed, ordered by work date with its
// booking records attached.  preview limits how many records are attached
// per slot; zero or less attaches the full list.
func (r *SlotRepo) ListAll(ctx context.Context, preview int) ([]model.Slot, error) {
	return r.list(ctx, allSlotsKey, preview)
}

// Bookings returns the slot's booking records in commit order.
func (r *SlotRepo) Bookings(ctx context.Context, id string) ([]model.Booking, error) {
	n, err := r.rdb.Exists(ctx, slotKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrSlotNotFound
	}
	raw, err := r.rdb.LRange(ctx, slotBookingsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeBookings(raw)
}

// list loads the slots referenced by an index.  Booking records are only
// attached for the all-slots index: whole lists when preview <= 0, the
// first preview records otherwise.
func (r *SlotRepo) list(ctx context.Context, index string, preview int) ([]model.Slot, error) {
	ids, err := r.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Slot{}, nil
	}
	withBookings := index == allSlotsKey
	stop := int64(-1)
	if preview > 0 {
		stop = int64(preview - 1)
	}

	hashes := make([]*redis.MapStringStringCmd, len(ids))
	counts := make([]*redis.StringCmd, len(ids))
	lists := make([]*redis.StringSliceCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			hashes[i] = pipe.HGetAll(ctx, slotKey(id))
			counts[i] = pipe.Get(ctx, slotCountKey(id))
			if withBookings {
				lists[i] = pipe.LRange(ctx, slotBookingsKey(id), 0, stop)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	slots := make([]model.Slot, 0, len(ids))
	for i, id := range ids {
		h := hashes[i].Val()
		if len(h) == 0 {
			// index entry outlived its hash; skip it
			continue
		}
		count, err := counts[i].Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		s, err := decodeSlot(id, h, count)
		if err != nil {
			return nil, err
		}
		if withBookings {
			if s.Bookings, err = decodeBookings(lists[i].Val()); err != nil {
				return nil, err
			}
		}
		slots = append(slots, s)
	}
	return slots, nil
}

func slotFields(in model.SlotInput) map[string]any {
	return map[string]any{
		"work_date": in.WorkDate,
		"slot_name": in.SlotName,
		"is_open":   encodeBool(in.IsOpen),
		"capacity":  strconv.Itoa(in.Capacity),
	}
}

func decodeSlot(id string, h map[string]string, count int) (model.Slot, error) {
	capacity, err := strconv.Atoi(h["capacity"])
	if err != nil {
		return model.Slot{}, fmt.Errorf("slot %s: bad capacity %q", id, h["capacity"])
	}
	s := model.Slot{
		ID:              id,
		WorkDate:        h["work_date"],
		SlotName:        h["slot_name"],
		IsOpen:          decodeBool(h["is_open"]),
		Capacity:        capacity,
		CurrentBookings: count,
	}
	if ts, err := time.Parse(time.RFC3339Nano, h["created_at"]); err == nil {
		s.CreatedAt = ts
	}
	return s, nil
}

func decodeBookings(raw []string) ([]model.Booking, error) {
	out := make([]model.Booking, 0, len(raw))
	for _, s := range raw {
		var b model.Booking
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			return nil, fmt.Errorf("decode booking: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}
