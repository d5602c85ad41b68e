package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/shift-signup/internal/model"
	"github.com/iliyamo/shift-signup/internal/repository"
)

// AdminStore is the slice of the admin repository seeding needs.
type AdminStore interface {
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, username, password, role string, cost int) (uint64, error)
}

// SeedOptions configures the default data of a fresh install.
type SeedOptions struct {
	SuperPassword  string
	ViewerPassword string
	BcryptCost     int
	Today          time.Time // base date for the sample slots; zero means now
}

// Seed creates the default admin accounts and three sample slots when no
// admin account exists yet.  It reports whether anything was written.
func Seed(ctx context.Context, admins AdminStore, svc *BookingService, opts SeedOptions) (bool, error) {
	n, err := admins.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	accounts := []struct{ user, pass, role string }{
		{"admin", opts.SuperPassword, model.RoleSuper},
		{"viewer", opts.ViewerPassword, model.RoleViewer},
	}
	for _, a := range accounts {
		if _, err := admins.Create(ctx, a.user, a.pass, a.role, opts.BcryptCost); err != nil && !errors.Is(err, repository.ErrUsernameExists) {
			return false, fmt.Errorf("seed admin %s: %w", a.user, err)
		}
	}

	today := opts.Today
	if today.IsZero() {
		today = time.Now()
	}
	slots := []model.SlotInput{
		{WorkDate: today.AddDate(0, 0, 1).Format(time.DateOnly), SlotName: "Morning (08:00-12:00)", IsOpen: true, Capacity: 5},
		{WorkDate: today.AddDate(0, 0, 2).Format(time.DateOnly), SlotName: "Afternoon (13:00-17:00)", IsOpen: true, Capacity: 10},
		{WorkDate: today.AddDate(0, 0, 3).Format(time.DateOnly), SlotName: "Weekend full day (09:00-17:00)", IsOpen: false, Capacity: 5},
	}
	for _, in := range slots {
		if _, err := svc.CreateSlot(ctx, in); err != nil {
			return false, fmt.Errorf("seed slot %s: %w", in.WorkDate, err)
		}
	}
	log.Printf("seed: created %d admin accounts and %d slots", len(accounts), len(slots))
	return true, nil
}
