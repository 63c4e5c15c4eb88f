package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSecret_Empty(t *testing.T) {
	result := ValidateSecret("", "test_secret", 12, true)
	assert.False(t, result.IsValid)
	assert.Equal(t, SecretStrengthWeak, result.Strength)
	assert.Contains(t, result.Errors[0], "cannot be empty")
}

func TestValidateSecret_Placeholders(t *testing.T) {
	placeholders := []string{
		"changeme",
		"CHANGEME",
		"your_api_key",
		"password",
		"demo",
	}

	for _, placeholder := range placeholders {
		t.Run(placeholder, func(t *testing.T) {
			result := ValidateSecret(placeholder, "test_secret", 12, true)
			assert.False(t, result.IsValid)
			assert.Equal(t, SecretStrengthWeak, result.Strength)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestValidateSecret_TooShort(t *testing.T) {
	result := ValidateSecret("kQ4z", "test_secret", 12, true)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "at least 12 characters")
}

func TestValidateSecret_WeakStrength(t *testing.T) {
	// Only lowercase, meets length but weak composition
	result := ValidateSecret("kmqzrtwbnghj", "test_secret", 12, true)
	assert.False(t, result.IsValid)
	assert.Equal(t, SecretStrengthWeak, result.Strength)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateSecret_MediumStrength(t *testing.T) {
	// 12 chars, 2 types (lowercase + numbers)
	result := ValidateSecret("h7j2p9k4m6q8", "test_secret", 12, false)
	assert.True(t, result.IsValid)
	assert.Equal(t, SecretStrengthMedium, result.Strength)
}

func TestValidateSecret_StrongPassword(t *testing.T) {
	strongPasswords := []string{
		"Kx9#mQ2$vL8@pR4z",
		"aB3$fG7*jK9@mN2pQr",
	}

	for _, strong := range strongPasswords {
		t.Run(strong, func(t *testing.T) {
			result := ValidateSecret(strong, "test_secret", 12, true)
			assert.True(t, result.IsValid, "Password should be valid: %v", result.Errors)
			assert.Equal(t, SecretStrengthStrong, result.Strength)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestValidateProductionSecrets_FlagsWeakValues(t *testing.T) {
	cfg := getValidConfig()
	cfg.Database.Password = "kmqzrtwbnghj"

	errs := ValidateProductionSecrets(cfg)

	assert.NotEmpty(t, errs)
	assert.Equal(t, "database.password", errs[0].Field)
}

func TestValidateProductionSecrets_AcceptsStrongValues(t *testing.T) {
	cfg := getValidConfig()
	cfg.Redis.Password = "Zw7!nT3&bY6@qW1x"
	cfg.MarketData.APIKey = "bXN4Qk92UlM0dEhKa2Zq"
	cfg.MarketData.SecretKey = "dGpGb2xpb1NpbU5vdFJlYWw"

	errs := ValidateProductionSecrets(cfg)
	assert.Empty(t, errs)
}

func TestGetSecretStrengthDescription(t *testing.T) {
	assert.Equal(t, "Weak", GetSecretStrengthDescription(SecretStrengthWeak))
	assert.Equal(t, "Medium", GetSecretStrengthDescription(SecretStrengthMedium))
	assert.Equal(t, "Strong", GetSecretStrengthDescription(SecretStrengthStrong))
}

func TestGetVaultConfigFromEnv_Disabled(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "false")

	cfg := GetVaultConfigFromEnv()
	assert.False(t, cfg.Enabled)
}

func TestGetVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "http://vault.internal:8200")
	t.Setenv("VAULT_TOKEN", "s.tokenvalue")
	t.Setenv("VAULT_SECRET_PATH", "foliosim/staging")

	cfg := GetVaultConfigFromEnv()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http://vault.internal:8200", cfg.Address)
	assert.Equal(t, "s.tokenvalue", cfg.Token)
	assert.Equal(t, "token", cfg.AuthMethod)
	assert.Equal(t, "secret", cfg.MountPath)
	assert.Equal(t, "foliosim/staging", cfg.SecretPath)
}

func TestNewVaultClient_Disabled(t *testing.T) {
	_, err := NewVaultClient(VaultConfig{Enabled: false})
	assert.Error(t, err)
}
