package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CREDENTIAL_MAX_AGE", "")
	t.Setenv("VERIFY_RATE_LIMIT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("PAYMENT_STATIC_APPROVE", "")
	t.Setenv("PAYMENT_GATEWAY_URL", "")

	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8760*time.Hour, cfg.CredentialMaxAge)
	assert.Equal(t, 120, cfg.VerifyRateLimit)
	assert.Equal(t, 3, cfg.PaymentMaxRetries)
	assert.Equal(t, "tickets", cfg.AMQPExchange)
	assert.False(t, cfg.PaymentStaticApprove)
	assert.Error(t, cfg.Validate(), "default config must not run without a payment oracle")
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CREDENTIAL_MAX_AGE", "0")
	t.Setenv("VERIFY_RATE_LIMIT", "30")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("PAYMENT_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()

	assert.Equal(t, time.Duration(0), cfg.CredentialMaxAge)
	assert.Equal(t, 30, cfg.VerifyRateLimit)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "development fills in secret",
			cfg:  Config{Environment: "development", PaymentStaticApprove: true},
		},
		{
			name:    "development without payment oracle",
			cfg:     Config{Environment: "development"},
			wantErr: true,
		},
		{
			name: "development with gateway",
			cfg:  Config{Environment: "development", PaymentGatewayURL: "https://pay.example"},
		},
		{
			name:    "production without secret",
			cfg:     Config{Environment: "production", PaymentGatewayURL: "https://pay.example"},
			wantErr: true,
		},
		{
			name: "production short secret",
			cfg: Config{
				Environment:       "production",
				CredentialSecret:  "short",
				PaymentGatewayURL: "https://pay.example",
			},
			wantErr: true,
		},
		{
			name: "production without gateway",
			cfg: Config{
				Environment:      "production",
				CredentialSecret: "0123456789abcdef0123456789abcdef",
			},
			wantErr: true,
		},
		{
			name: "production ok",
			cfg: Config{
				Environment:       "production",
				CredentialSecret:  "0123456789abcdef0123456789abcdef",
				PaymentGatewayURL: "https://pay.example",
			},
		},
		{
			name: "production with static approval",
			cfg: Config{
				Environment:          "production",
				CredentialSecret:     "0123456789abcdef0123456789abcdef",
				PaymentGatewayURL:    "https://pay.example",
				PaymentStaticApprove: true,
			},
			wantErr: true,
		},
		{
			name:    "negative max age",
			cfg:     Config{Environment: "development", PaymentStaticApprove: true, CredentialMaxAge: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.CredentialSecret)
			assert.GreaterOrEqual(t, cfg.PaymentMaxRetries, 1)
		})
	}
}
