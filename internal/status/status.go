package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound              = errors.New("store: record not found")
	ErrInsufficientInventory = errors.New("issuance: insufficient inventory")
	ErrPaymentNotConfirmed   = errors.New("payment: payment not confirmed")
	ErrOrderNotPending       = errors.New("order: order is not pending")
	ErrVerifierUnauthorized  = errors.New("officer: verifier unauthorized")
	ErrInvalidInput          = errors.New("request: invalid input")
	ErrOracleUnavailable     = errors.New("payment: oracle unavailable")
)

type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionFailure TransactionStatus = "failure"
)

// Transaction is the payment oracle's verdict for a reference.
type Transaction struct {
	Reference  string            `json:"reference"`
	ExternalID string            `json:"external_id"`
	Status     TransactionStatus `json:"status"`
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency"`
	PaidAt     time.Time         `json:"paid_at"`
}

func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == TransactionSuccess
}
