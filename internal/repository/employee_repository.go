package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shift-signup/internal/model"
)

// EmployeeRepo is the employee registry.  Records live in employee:<id>
// hashes; employee_index maps each full credential to its employee id and
// employee_lookup:<name>:<last4> sets serve signups that identify by name
// and credential suffix.
type EmployeeRepo struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewEmployeeRepo returns an EmployeeRepo bound to the given Redis client.
func NewEmployeeRepo(rdb redis.UniversalClient) *EmployeeRepo {
	return &EmployeeRepo{rdb: rdb, now: time.Now}
}

// Register stores a new employee and returns the generated id.  The record,
// the credential index entry and the name/suffix lookup entry are committed
// together while employee_index is watched, so two concurrent registrations
// of one credential cannot both succeed.  ErrDuplicateCredential is
// returned when idFull is already registered.
func (r *EmployeeRepo) Register(ctx context.Context, name, idFull, phone string) (string, error) {
	id := uuid.NewString()
	last4 := suffix4(idFull)
	created := r.now().UTC().Format(time.RFC3339Nano)
	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, employeeIndexKey, idFull).Result()
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateCredential
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, employeeKey(id), map[string]any{
				"name":       name,
				"id_full":    idFull,
				"id_last_4":  last4,
				"phone":      phone,
				"created_at": created,
			})
			pipe.HSet(ctx, employeeIndexKey, idFull, id)
			pipe.SAdd(ctx, employeeLookupKey(name, last4), id)
			return nil
		})
		return err
	}
	if err := metadataPolicy.run(ctx, r.rdb, txf, employeeIndexKey); err != nil {
		return "", err
	}
	return id, nil
}

// FindByNameAndLast4 resolves an employee id from the name/suffix pair
// through the lookup index.  ErrAmbiguousEmployee is returned when several
// employees share the pair, since picking one would book the wrong person.
func (r *EmployeeRepo) FindByNameAndLast4(ctx context.Context, name, last4 string) (string, error) {
	ids, err := r.rdb.SMembers(ctx, employeeLookupKey(name, last4)).Result()
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", ErrEmployeeNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguousEmployee
	}
}

// FindByCredential returns the employee id registered for idFull.
func (r *EmployeeRepo) FindByCredential(ctx context.Context, idFull string) (string, error) {
	id, err := r.rdb.HGet(ctx, employeeIndexKey, idFull).Result()
	if err == redis.Nil {
		return "", ErrEmployeeNotFound
	}
	return id, err
}

// Get returns the employee record.
func (r *EmployeeRepo) Get(ctx context.Context, id string) (model.Employee, error) {
	h, err := r.rdb.HGetAll(ctx, employeeKey(id)).Result()
	if err != nil {
		return model.Employee{}, fmt.Errorf("load employee %s: %w", id, err)
	}
	if len(h) == 0 {
		return model.Employee{}, ErrEmployeeNotFound
	}
	e := model.Employee{
		ID:      id,
		Name:    h["name"],
		IDFull:  h["id_full"],
		IDLast4: h["id_last_4"],
		Phone:   h["phone"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, h["created_at"]); err == nil {
		e.CreatedAt = ts
	}
	return e, nil
}

func suffix4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
