// Package profiles stores and validates calibration profiles.
//
// A profile is a named, versioned document carrying the calibration
// parameters the engine applies to raw simulation results. Profiles live
// either as YAML files in a directory (FileStore) or as JSONB documents
// in PostgreSQL (PGStore); both implement Store and report missing
// profiles as ErrProfileNotFound so the calibrator can fall back to
// pass-through.
package profiles

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// SchemaVersion is the current profile document schema version.
const SchemaVersion = "1.0"

// SupportedSchemaVersions lists all supported schema versions
var SupportedSchemaVersions = []string{"1.0"}

// ErrProfileNotFound is returned when a store has no profile under the
// requested name. It aliases the engine sentinel so errors.Is matches on
// both sides of the package boundary.
var ErrProfileNotFound = sim.ErrProfileNotFound

// ValidationError contains details about a single validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Metadata identifies and describes a profile
type Metadata struct {
	// Schema version for compatibility
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// User-defined name, also the storage key
	Name string `yaml:"name" json:"name"`

	// Version of this specific profile (user-defined)
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Profile is a stored calibration profile document.
type Profile struct {
	Metadata Metadata              `yaml:"metadata" json:"metadata"`
	Params   sim.CalibrationParams `yaml:"calibration_parameters" json:"calibration_parameters"`
}

// Validate performs comprehensive validation on a profile.
// Returns nil if valid, or ValidationErrors with all issues found.
func (p *Profile) Validate() error {
	var errs ValidationErrors

	errs = append(errs, p.validateMetadata()...)
	errs = append(errs, p.validateParams()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p *Profile) validateMetadata() ValidationErrors {
	var errs ValidationErrors

	if p.Metadata.SchemaVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: "schema version is required",
		})
	} else if !isVersionSupported(p.Metadata.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", p.Metadata.SchemaVersion, SupportedSchemaVersions),
		})
	}

	if p.Metadata.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "profile name is required",
		})
	} else if len(p.Metadata.Name) > 100 {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "profile name must be 100 characters or less",
		})
	}

	return errs
}

func (p *Profile) validateParams() ValidationErrors {
	var errs ValidationErrors

	if p.Params.MarketTimingEfficiency <= 0 || p.Params.MarketTimingEfficiency > 1 {
		errs = append(errs, ValidationError{
			Field:   "calibration_parameters.market_timing_efficiency",
			Message: "market timing efficiency must be greater than 0 and at most 1",
		})
	}

	if p.Params.DailySlippage < 0 {
		errs = append(errs, ValidationError{
			Field:   "calibration_parameters.daily_slippage",
			Message: "daily slippage cannot be negative",
		})
	}

	if p.Params.TradingFee < 0 {
		errs = append(errs, ValidationError{
			Field:   "calibration_parameters.trading_fee",
			Message: "trading fee cannot be negative",
		})
	}

	if p.Params.VolatilityDrag < 0 {
		errs = append(errs, ValidationError{
			Field:   "calibration_parameters.volatility_drag",
			Message: "volatility drag cannot be negative",
		})
	}

	if p.Params.MaxDailyReturn <= p.Params.MinDailyReturn {
		errs = append(errs, ValidationError{
			Field:   "calibration_parameters.max_daily_return",
			Message: "max daily return must be greater than min daily return",
		})
	}

	return errs
}

func isVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}
	return false
}

// ToSim converts the stored document into the engine's profile type.
func (p *Profile) ToSim() *sim.CalibrationProfile {
	return &sim.CalibrationProfile{
		Name:        p.Metadata.Name,
		Version:     p.Metadata.Version,
		Description: p.Metadata.Description,
		Params:      p.Params,
	}
}
