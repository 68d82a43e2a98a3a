package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-gate/config"
	"ticket-gate/internal/services/bank"
	"ticket-gate/internal/status"
)

func TestSetupOracles_DefaultConfigHasNoApproveAll(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("PAYMENT_GATEWAY_URL", "")
	t.Setenv("PAYMENT_STATIC_APPROVE", "")

	cfg := config.LoadConfig()
	require.False(t, cfg.PaymentStaticApprove)

	registry, err := setupOracles(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, registry)
}

func TestSetupOracles_StaticApproveIsOptIn(t *testing.T) {
	cfg := &config.Config{Environment: "development", PaymentStaticApprove: true}

	registry, err := setupOracles(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []bank.Provider{bank.ProviderStatic}, registry.Providers())

	tx, err := registry.CheckTransaction(context.Background(), "ORD-ANYTHING")
	require.NoError(t, err)
	assert.Equal(t, status.TransactionSuccess, tx.Status)
}
