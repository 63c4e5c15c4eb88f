package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Store provides named access to calibration profiles.
type Store interface {
	// LoadProfile returns the named profile, or ErrProfileNotFound.
	LoadProfile(ctx context.Context, name string) (*Profile, error)

	// ListProfiles returns the names of all stored profiles, sorted.
	ListProfiles(ctx context.Context) ([]string, error)

	// SaveProfile validates and persists a profile under its metadata name.
	SaveProfile(ctx context.Context, p *Profile) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PGStore)(nil)
)

// Config selects and locates a profile store.
type Config struct {
	Store string // "file" or "postgres"
	Dir   string // directory for the file store
}

// New builds the store selected by cfg. The postgres store needs a live
// pool; the file store only needs a directory.
func New(cfg Config, pool *pgxpool.Pool) (Store, error) {
	switch cfg.Store {
	case "file", "":
		return NewFileStore(cfg.Dir), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres profile store requires a database pool")
		}
		return NewPGStoreWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unknown profile store %q", cfg.Store)
	}
}

// ForEngine adapts a Store to the engine's read-only profile interface.
func ForEngine(s Store) sim.ProfileStore {
	return engineStore{s: s}
}

type engineStore struct {
	s Store
}

func (e engineStore) LoadProfile(ctx context.Context, name string) (*sim.CalibrationProfile, error) {
	p, err := e.s.LoadProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.ToSim(), nil
}

// prepareForSave stamps bookkeeping fields and validates the document.
func prepareForSave(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	if p.Metadata.SchemaVersion == "" {
		p.Metadata.SchemaVersion = SchemaVersion
	}

	now := time.Now().UTC()
	if p.Metadata.CreatedAt.IsZero() {
		p.Metadata.CreatedAt = now
	}
	p.Metadata.UpdatedAt = now

	return p.Validate()
}
