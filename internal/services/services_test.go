package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/credential"
	"ticket-gate/internal/notify"
	"ticket-gate/internal/services/bank"
	"ticket-gate/internal/store/sqlstore"
	"ticket-gate/models"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const testSecret = "gate-test-secret-0123456789abcdef"

type harness struct {
	store    *sqlstore.Store
	clock    *clock.Fake
	pub      *notify.Memory
	oracle   *bank.Static
	codec    *credential.Codec
	events   *EventService
	officers *OfficerService
	issuance *IssuanceService
	verify   *VerificationService
	orders   *OrderService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "gate.db"), sqlstore.Options{MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	codec, err := credential.NewCodec([]byte(testSecret))
	require.NoError(t, err)

	h := &harness{
		store:  st,
		clock:  clock.NewFake(testNow),
		pub:    &notify.Memory{},
		oracle: bank.NewStatic(false),
		codec:  codec,
	}
	h.events = NewEventService(st, h.clock)
	h.officers = NewOfficerService(st, h.clock)
	h.issuance = NewIssuanceService(st, codec, h.pub, nil, h.clock)
	h.verify = NewVerificationService(st, h.officers, codec, h.pub, nil, h.clock, 365*24*time.Hour)
	h.orders = NewOrderService(st, h.oracle, h.issuance, nil, h.clock, OrderOptions{MaxRetries: 3, RetryDelay: time.Millisecond})
	return h
}

func (h *harness) customer(t *testing.T, name, email, phone string) *models.User {
	t.Helper()
	u := &models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Phone:     phone,
		Role:      models.RoleCustomer,
		CreatedAt: testNow,
	}
	require.NoError(t, h.store.CreateUser(context.Background(), u))
	return u
}

func (h *harness) event(t *testing.T, total int) *models.Event {
	t.Helper()
	e, err := h.events.CreateEvent(context.Background(), CreateEventRequest{
		Title:        "Mekong Riverside Festival",
		Location:     "Luang Prabang",
		StartTime:    testNow.Add(6 * time.Hour),
		EndTime:      testNow.Add(12 * time.Hour),
		Price:        decimal.RequireFromString("150.00"),
		TotalTickets: total,
	})
	require.NoError(t, err)
	return e
}

// completedOrder stores an order whose payment has already been confirmed.
func (h *harness) completedOrder(t *testing.T, user *models.User, event *models.Event, qty int, typeID string) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		EventID:      event.ID,
		TicketTypeID: typeID,
		Quantity:     qty,
		TotalAmount:  event.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:       models.OrderCompleted,
		PaymentRef:   "REF-" + uuid.NewString(),
		ExternalID:   "EXT-" + uuid.NewString(),
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, h.store.CreateOrder(context.Background(), o))
	return o
}

func (h *harness) officer(t *testing.T, event *models.Event, email string) *models.SecurityOfficer {
	t.Helper()
	o, err := h.officers.Register(context.Background(), RegisterOfficerRequest{
		Name:    "Door " + email,
		Email:   email,
		Phone:   "020 5555 0000",
		EventID: event.ID,
	})
	require.NoError(t, err)
	return o
}

// issued mints qty tickets for a fresh customer.
func (h *harness) issued(t *testing.T, event *models.Event, user *models.User, qty int) []models.Ticket {
	t.Helper()
	order := h.completedOrder(t, user, event, qty, "")
	tickets, err := h.issuance.IssueTickets(context.Background(), order.ID, qty, "")
	require.NoError(t, err)
	require.Len(t, tickets, qty)
	return tickets
}

func (h *harness) soldTickets(t *testing.T, eventID string) int {
	t.Helper()
	e, err := h.store.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return e.SoldTickets
}
