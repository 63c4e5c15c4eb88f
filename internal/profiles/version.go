package profiles

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MigrationFunc upgrades a profile document in place from one schema
// version toward the next.
type MigrationFunc func(*Profile) error

// migrations maps source version to migration functions
var migrations = map[string]MigrationFunc{
	// Example: "0.9" -> "1.0" migration
	// "0.9": migrateFrom09To10,
}

// parseVersion parses a version string, retrying short forms with a
// patch suffix appended.
func parseVersion(version string) (*semver.Version, error) {
	v, err := semver.NewVersion(version)
	if err == nil {
		return v, nil
	}
	return semver.NewVersion(version + ".0")
}

// Migrate upgrades a profile to the current schema version
func Migrate(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	// Already at current version
	if p.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(p.Metadata.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version: %s", p.Metadata.SchemaVersion)
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	// Check if version is newer than supported
	if current.GreaterThan(target) {
		return fmt.Errorf("profile schema version %s is newer than supported version %s",
			p.Metadata.SchemaVersion, SchemaVersion)
	}

	// Apply migrations in order
	for version, migrate := range migrations {
		migrationVersion, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if current.LessThan(migrationVersion) {
			if err := migrate(p); err != nil {
				return fmt.Errorf("migration from %s failed: %w", version, err)
			}
		}
	}

	// Update to current version
	p.Metadata.SchemaVersion = SchemaVersion

	return nil
}

// CheckCompatibility checks if a profile can be migrated to the current
// schema version.
func CheckCompatibility(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	if p.Metadata.SchemaVersion == "" {
		return fmt.Errorf("missing schema version")
	}

	current, err := parseVersion(p.Metadata.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version: %s", p.Metadata.SchemaVersion)
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	// Version is newer than supported
	if current.GreaterThan(target) {
		return fmt.Errorf("profile requires schema version %s, but only %s is supported",
			p.Metadata.SchemaVersion, SchemaVersion)
	}

	// Direct migration is supported within the same major version.
	if current.LessThan(target) {
		if current.Major() != target.Major() {
			return fmt.Errorf("no migration path from version %s to %s",
				p.Metadata.SchemaVersion, SchemaVersion)
		}
	}

	return nil
}

// CompareVersions compares two version strings
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %s", a)
	}

	vb, err := parseVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %s", b)
	}

	return va.Compare(vb), nil
}

// IsVersionSupported checks if a schema version is supported
func IsVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}

	// Also check using semver comparison for patch versions
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	for _, supported := range SupportedSchemaVersions {
		sv, err := semver.NewVersion(supported)
		if err != nil {
			continue
		}
		// Patch releases of a supported major.minor are accepted.
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}

	return false
}
