package bank

import (
	"context"

	"ticket-gate/internal/status"
)

// Provider names a payment oracle implementation.
type Provider string

const (
	ProviderGateway Provider = "gateway"
	ProviderStatic  Provider = "static"
)

// Oracle is the authoritative source of payment verdicts. Implementations may
// be slow; callers bound them with a context deadline.
type Oracle interface {
	// Provider returns the oracle's registry name.
	Provider() Provider

	// CheckTransaction returns the verdict for a payment reference. A declined
	// or unknown payment is a TransactionFailure verdict, not an error; errors
	// mean the verdict could not be obtained.
	CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error)
}
