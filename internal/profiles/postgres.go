package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/foliosim/internal/metrics"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore keeps profiles as JSONB documents in the profiles table.
type PGStore struct {
	pool PoolInterface
}

// NewPGStore creates a profile store on a database connection
func NewPGStore(pool PoolInterface) *PGStore {
	return &PGStore{pool: pool}
}

// NewPGStoreWithPool creates a profile store with pgxpool.Pool
func NewPGStoreWithPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// LoadProfile fetches the named document, migrates it to the current
// schema version, and validates it.
func (s *PGStore) LoadProfile(ctx context.Context, name string) (*Profile, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("database pool is not configured")
	}

	start := time.Now()
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM profiles WHERE name = $1`, name).Scan(&doc)
	metrics.RecordDatabaseQuery("load_profile", float64(time.Since(start).Milliseconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", name, ErrProfileNotFound)
		}
		return nil, fmt.Errorf("loading profile %s: %w", name, err)
	}

	var p Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", name, err)
	}

	if err := Migrate(&p); err != nil {
		return nil, fmt.Errorf("migrating profile %s: %w", name, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}

	return &p, nil
}

// ListProfiles returns all stored profile names in alphabetical order.
func (s *PGStore) ListProfiles(ctx context.Context) ([]string, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("database pool is not configured")
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT name FROM profiles ORDER BY name`)
	metrics.RecordDatabaseQuery("list_profiles", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning profile name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	return names, nil
}

// SaveProfile validates the profile and upserts its JSONB document.
func (s *PGStore) SaveProfile(ctx context.Context, p *Profile) error {
	if s.pool == nil {
		return fmt.Errorf("database pool is not configured")
	}

	if err := prepareForSave(p); err != nil {
		return err
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", p.Metadata.Name, err)
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (name, document)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		p.Metadata.Name, doc)
	metrics.RecordDatabaseQuery("save_profile", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", p.Metadata.Name, err)
	}

	return nil
}
