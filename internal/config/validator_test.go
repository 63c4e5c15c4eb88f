package config

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCredentialPresence(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		apiKey    string
		secretKey string
		wantErr   string
	}{
		{
			name:   "non-binance sources skip credential checks",
			source: "synthetic",
			apiKey: "short",
		},
		{
			name:   "no keys is valid for public endpoints",
			source: "binance",
		},
		{
			name:      "valid key pair passes",
			source:    "binance",
			apiKey:    "Fk3mQ92vLx8PpR4zWn6T",
			secretKey: "Jd7nB31cVy5KqS9xZm2H",
		},
		{
			name:    "key without secret fails",
			source:  "binance",
			apiKey:  "Fk3mQ92vLx8PpR4zWn6T",
			wantErr: "configured together",
		},
		{
			name:      "short key fails",
			source:    "binance",
			apiKey:    "tooshort",
			secretKey: "Jd7nB31cVy5KqS9xZm2H",
			wantErr:   "too short",
		},
		{
			name:      "placeholder key fails",
			source:    "binance",
			apiKey:    "your_api_key_goes_here",
			secretKey: "Jd7nB31cVy5KqS9xZm2H",
			wantErr:   "placeholder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			cfg.MarketData.Source = tt.source
			cfg.MarketData.APIKey = tt.apiKey
			cfg.MarketData.SecretKey = tt.secretKey

			v := NewValidator(cfg, ValidatorOptions{})
			err := v.validateCredentialPresence()

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateEnvironmentVariables(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	t.Run("complete config passes", func(t *testing.T) {
		v := NewValidator(getValidConfig(), ValidatorOptions{})
		assert.NoError(t, v.validateEnvironmentVariables())
	})

	t.Run("missing database host fails", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.Database.Host = ""

		v := NewValidator(cfg, ValidatorOptions{})
		err := v.validateEnvironmentVariables()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_HOST or DATABASE_URL")
	})

	t.Run("DATABASE_URL substitutes for host config", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/foliosim")

		cfg := getValidConfig()
		cfg.Database.Host = ""

		v := NewValidator(cfg, ValidatorOptions{})
		assert.NoError(t, v.validateEnvironmentVariables())
	})

	t.Run("missing NATS URL only matters when enabled", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.NATS.URL = ""

		v := NewValidator(cfg, ValidatorOptions{})
		err := v.validateEnvironmentVariables()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NATS_URL")

		cfg.NATS.Enabled = false
		assert.NoError(t, v.validateEnvironmentVariables())
	})
}

func TestValidatorProductionRequirements(t *testing.T) {
	t.Run("skipped outside production", func(t *testing.T) {
		t.Setenv("FOLIOSIM_APP_ENVIRONMENT", "development")
		t.Setenv("VAULT_ENABLED", "")

		v := NewValidator(getValidConfig(), ValidatorOptions{})
		assert.NoError(t, v.validateProductionRequirements())
	})

	t.Run("production requires vault", func(t *testing.T) {
		t.Setenv("FOLIOSIM_APP_ENVIRONMENT", "production")
		t.Setenv("VAULT_ENABLED", "")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("REDIS_URL", "")
		t.Setenv("POSTGRES_PASSWORD", "")

		v := NewValidator(getValidConfig(), ValidatorOptions{})
		err := v.validateProductionRequirements()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "VAULT_ENABLED=true")
	})

	t.Run("production rejects disabled database SSL", func(t *testing.T) {
		t.Setenv("FOLIOSIM_APP_ENVIRONMENT", "production")
		t.Setenv("VAULT_ENABLED", "true")
		t.Setenv("VAULT_ADDR", "https://vault.internal:8200")
		t.Setenv("VAULT_AUTH_METHOD", "token")
		t.Setenv("VAULT_TOKEN", "s.1234567890abcdef")
		t.Setenv("DATABASE_URL", "postgres://db/foliosim?sslmode=disable")
		t.Setenv("REDIS_URL", "")
		t.Setenv("POSTGRES_PASSWORD", "")

		v := NewValidator(getValidConfig(), ValidatorOptions{})
		err := v.validateProductionRequirements()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode=disable")
	})

	t.Run("fully configured production passes", func(t *testing.T) {
		t.Setenv("FOLIOSIM_APP_ENVIRONMENT", "production")
		t.Setenv("VAULT_ENABLED", "true")
		t.Setenv("VAULT_ADDR", "https://vault.internal:8200")
		t.Setenv("VAULT_AUTH_METHOD", "approle")
		t.Setenv("VAULT_ROLE_ID", "role-1234")
		t.Setenv("VAULT_SECRET_ID", "secret-5678")
		t.Setenv("DATABASE_URL", "postgres://db/foliosim?sslmode=require")
		t.Setenv("REDIS_URL", "rediss://redis:6379")
		t.Setenv("POSTGRES_PASSWORD", "Kx9#mQ2$vL8@pR4z")

		v := NewValidator(getValidConfig(), ValidatorOptions{})
		assert.NoError(t, v.validateProductionRequirements())
	})
}

func TestValidateStartupWithoutConnectivity(t *testing.T) {
	t.Setenv("FOLIOSIM_APP_ENVIRONMENT", "development")

	v := NewValidator(getValidConfig(), ValidatorOptions{
		VerifyConnectivity: false,
		VerifyMarketData:   false,
	})
	assert.NoError(t, v.ValidateStartup(context.Background()))
}

func TestIsPlaceholderValue(t *testing.T) {
	assert.True(t, isPlaceholderValue("your_api_key"))
	assert.True(t, isPlaceholderValue("CHANGEME-now"))
	assert.True(t, isPlaceholderValue("an example value"))
	assert.False(t, isPlaceholderValue("Fk3mQ92vLx8PpR4zWn6T"))
}

func TestDefaultValidatorOptions(t *testing.T) {
	opts := DefaultValidatorOptions()
	assert.True(t, opts.VerifyConnectivity)
	assert.False(t, opts.VerifyMarketData)
	assert.Positive(t, opts.Timeout)
}

func TestProductionErrorListsAllProblems(t *testing.T) {
	t.Setenv("FOLIOSIM_APP_ENVIRONMENT", "production")
	t.Setenv("VAULT_ENABLED", "")
	t.Setenv("DATABASE_URL", "postgres://db/foliosim?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://redis:6379")
	t.Setenv("POSTGRES_PASSWORD", "changeme")

	v := NewValidator(getValidConfig(), ValidatorOptions{})
	err := v.validateProductionRequirements()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "VAULT_ENABLED=true")
	assert.Contains(t, msg, "sslmode=disable")
	assert.Contains(t, msg, "rediss://")
	assert.Contains(t, msg, "POSTGRES_PASSWORD")
	// Every failure is numbered in the report
	assert.GreaterOrEqual(t, strings.Count(msg, "\n  "), 4)
}
