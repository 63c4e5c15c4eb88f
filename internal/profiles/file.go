package profiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore reads and writes profiles as YAML documents in a directory,
// one file per profile named <name>.yaml.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed profile store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// LoadProfile reads <dir>/<name>.yaml (or .yml), migrates the document to
// the current schema version, and validates it.
func (s *FileStore) LoadProfile(ctx context.Context, name string) (*Profile, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+".yaml"))
	if os.IsNotExist(err) {
		data, err = os.ReadFile(filepath.Join(s.dir, name+".yml"))
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %s: %w", name, ErrProfileNotFound)
		}
		return nil, fmt.Errorf("reading profile %s: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
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

// ListProfiles returns the profile names found in the directory, sorted.
// A missing directory is treated as an empty store.
func (s *FileStore) ListProfiles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		switch {
		case strings.HasSuffix(base, ".yaml"):
			names = append(names, strings.TrimSuffix(base, ".yaml"))
		case strings.HasSuffix(base, ".yml"):
			names = append(names, strings.TrimSuffix(base, ".yml"))
		}
	}

	slices.Sort(names)
	return names, nil
}

// SaveProfile writes the profile to <dir>/<name>.yaml, creating the
// directory if needed.
func (s *FileStore) SaveProfile(ctx context.Context, p *Profile) error {
	if err := prepareForSave(p); err != nil {
		return err
	}
	if err := checkName(p.Metadata.Name); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("creating profile directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", p.Metadata.Name, err)
	}

	path := filepath.Join(s.dir, p.Metadata.Name+".yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing profile %s: %w", p.Metadata.Name, err)
	}

	return nil
}

// checkName rejects names that would resolve outside the store directory.
func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name is required")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid profile name %q", name)
	}
	return nil
}
