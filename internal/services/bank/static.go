package bank

import (
	"context"
	"sync"
	"time"

	"ticket-gate/internal/status"
)

type staticEntry struct {
	tx  *status.Transaction
	err error
}

// Static is an in-process oracle with scripted verdicts, used in development
// mode and tests. References without a script get the default verdict.
type Static struct {
	mu       sync.Mutex
	entries  map[string][]staticEntry
	approve  bool
	calls    map[string]int
	provider Provider
}

// NewStatic returns an oracle that approves unscripted references when
// approveByDefault is set and declines them otherwise.
func NewStatic(approveByDefault bool) *Static {
	return &Static{
		entries:  make(map[string][]staticEntry),
		calls:    make(map[string]int),
		approve:  approveByDefault,
		provider: ProviderStatic,
	}
}

func (s *Static) Provider() Provider {
	return s.provider
}

// Approve scripts a success verdict for reference.
func (s *Static) Approve(reference, externalID string) {
	s.push(reference, staticEntry{tx: &status.Transaction{
		Reference:  reference,
		ExternalID: externalID,
		Status:     status.TransactionSuccess,
		PaidAt:     time.Now(),
	}})
}

// Decline scripts a failure verdict for reference.
func (s *Static) Decline(reference string) {
	s.push(reference, staticEntry{tx: &status.Transaction{Reference: reference, Status: status.TransactionFailure}})
}

// FailNext makes the next call for reference return err instead of a verdict.
// Scripted entries are consumed in order; the last one sticks.
func (s *Static) FailNext(reference string, err error) {
	s.push(reference, staticEntry{err: err})
}

func (s *Static) push(reference string, e staticEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[reference] = append(s.entries[reference], e)
}

// Calls returns how many times reference was checked.
func (s *Static) Calls(reference string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[reference]
}

func (s *Static) CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[reference]++

	queue := s.entries[reference]
	if len(queue) == 0 {
		st := status.TransactionFailure
		if s.approve {
			st = status.TransactionSuccess
		}
		return &status.Transaction{Reference: reference, ExternalID: "static-" + reference, Status: st, PaidAt: time.Now()}, nil
	}

	e := queue[0]
	if len(queue) > 1 {
		s.entries[reference] = queue[1:]
	}
	if e.err != nil {
		return nil, e.err
	}
	tx := *e.tx
	return &tx, nil
}
