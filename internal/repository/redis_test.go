package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shift-signup/internal/model"
)

// newTestRedis starts an in-memory Redis server for the test.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 64})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var testPolicy = RetryPolicy{Attempts: 50, Base: time.Millisecond, Max: 5 * time.Millisecond}

func mustCreateSlot(t *testing.T, repo *SlotRepo, date string, open bool, capacity int) string {
	t.Helper()
	id, err := repo.Create(context.Background(), model.SlotInput{
		WorkDate: date, SlotName: "Shift " + date, IsOpen: open, Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return id
}
