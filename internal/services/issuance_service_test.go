package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-gate/internal/notify"
	"ticket-gate/internal/status"
	"ticket-gate/models"
)

func TestIssueTickets_MintsNumberedTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 10)
	buyer := h.customer(t, "Noy Vongsa", "noy@example.com", "020 1111 2222")
	order := h.completedOrder(t, buyer, event, 3, "")

	tickets, err := h.issuance.IssueTickets(ctx, order.ID, 3, "")
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	for i, ticket := range tickets {
		assert.Equal(t, i+1, ticket.TicketNumber)
		assert.Equal(t, models.StandardTicketType, ticket.TicketType)
		assert.Equal(t, "150", ticket.Price.String())
		assert.False(t, ticket.IsUsed)

		claims, err := h.codec.Decode(ticket.QRCode)
		require.NoError(t, err)
		assert.Equal(t, event.ID, claims.EventID)
		assert.Equal(t, buyer.ID, claims.UserID)
		assert.Equal(t, order.ID, claims.OrderID)
		assert.Equal(t, ticket.TicketNumber, claims.TicketNumber)
		assert.Equal(t, testNow.UnixMilli(), claims.IssuedAt)
	}

	assert.Equal(t, 3, h.soldTickets(t, event.ID))

	sent := h.pub.OfType(notify.TypeTicketsIssued)
	require.Len(t, sent, 1)
	assert.Equal(t, notify.UserChannel(buyer.ID), sent[0].Channel)
	assert.Equal(t, 3, sent[0].Message["count"])
}

func TestIssueTickets_RepeatedCallReturnsSameTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 10)
	buyer := h.customer(t, "Noy Vongsa", "noy@example.com", "")
	order := h.completedOrder(t, buyer, event, 2, "")

	first, err := h.issuance.IssueTickets(ctx, order.ID, 2, "")
	require.NoError(t, err)

	second, err := h.issuance.IssueTickets(ctx, order.ID, 2, "")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].QRCode, second[i].QRCode)
	}
	assert.Equal(t, 2, h.soldTickets(t, event.ID))
	assert.Len(t, h.pub.OfType(notify.TypeTicketsIssued), 1)
}

func TestIssueTickets_LastTicketGoesToOneOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 1)
	orderA := h.completedOrder(t, h.customer(t, "A", "a@example.com", ""), event, 1, "")
	orderB := h.completedOrder(t, h.customer(t, "B", "b@example.com", ""), event, 1, "")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, order := range []*models.Order{orderA, orderB} {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			_, errs[i] = h.issuance.IssueTickets(ctx, orderID, 1, "")
		}(i, order.ID)
	}
	wg.Wait()

	succeeded, soldOut := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, status.ErrInsufficientInventory):
			soldOut++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, soldOut)
	assert.Equal(t, 1, h.soldTickets(t, event.ID))
}

func TestIssueTickets_ConcurrentOrdersNeverOversell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 5)
	buyer := h.customer(t, "Bulk", "bulk@example.com", "")

	orders := make([]*models.Order, 12)
	for i := range orders {
		orders[i] = h.completedOrder(t, buyer, event, 1, "")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int
	)
	for _, order := range orders {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			tickets, err := h.issuance.IssueTickets(ctx, orderID, 1, "")
			if err != nil {
				assert.ErrorIs(t, err, status.ErrInsufficientInventory)
				return
			}
			mu.Lock()
			numbers = append(numbers, tickets[0].TicketNumber)
			mu.Unlock()
		}(order.ID)
	}
	wg.Wait()

	sort.Ints(numbers)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, numbers)
	assert.Equal(t, 5, h.soldTickets(t, event.ID))
}

func TestIssueTickets_RequiresCompletedOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 10)
	buyer := h.customer(t, "Pending", "pending@example.com", "")

	order, err := h.orders.CreateOrder(ctx, CreateOrderRequest{UserID: buyer.ID, EventID: event.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = h.issuance.IssueTickets(ctx, order.ID, 1, "")
	assert.ErrorIs(t, err, status.ErrPaymentNotConfirmed)
	assert.Equal(t, 0, h.soldTickets(t, event.ID))
}

func TestIssueTickets_MustMatchWhatWasPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 100)
	vip, err := h.events.AddTicketType(ctx, event.ID, CreateTicketTypeRequest{
		Name:     "VIP",
		Price:    decimal.NewFromInt(900),
		Capacity: 10,
	})
	require.NoError(t, err)

	order := h.completedOrder(t, h.customer(t, "Noy Vongsa", "noy@example.com", ""), event, 2, "")

	tests := []struct {
		name     string
		quantity int
		typeID   string
	}{
		{"More tickets than paid", 5, ""},
		{"Fewer tickets than paid", 1, ""},
		{"Pricier type than paid", 2, vip.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.issuance.IssueTickets(ctx, order.ID, tt.quantity, tt.typeID)
			assert.ErrorIs(t, err, status.ErrInvalidInput)
		})
	}

	assert.Equal(t, 0, h.soldTickets(t, event.ID))

	tickets, err := h.issuance.IssueTickets(ctx, order.ID, 2, "")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	_, err = h.issuance.IssueTickets(ctx, order.ID, 5, "")
	assert.ErrorIs(t, err, status.ErrInvalidInput)
	assert.Equal(t, 2, h.soldTickets(t, event.ID))
}

func TestIssueTickets_UnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.issuance.IssueTickets(context.Background(), "missing", 1, "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestIssueTickets_TypedSnapshotsTypePrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 100)
	vip, err := h.events.AddTicketType(ctx, event.ID, CreateTicketTypeRequest{
		Name:     "VIP",
		Price:    decimal.RequireFromString("499.99"),
		Capacity: 5,
	})
	require.NoError(t, err)

	buyer := h.customer(t, "Vip Guest", "vip@example.com", "")
	order := h.completedOrder(t, buyer, event, 2, vip.ID)

	tickets, err := h.issuance.IssueTickets(ctx, order.ID, 2, vip.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.Equal(t, "VIP", ticket.TicketType)
		assert.Equal(t, vip.ID, ticket.TicketTypeID)
		assert.Equal(t, "499.99", ticket.Price.String())
	}

	tt, err := h.store.GetTicketType(ctx, vip.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tt.SoldCount)
	assert.Equal(t, 2, h.soldTickets(t, event.ID))
}

func TestIssueTickets_TypeCapacityRollsBackEventCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 100)
	vip, err := h.events.AddTicketType(ctx, event.ID, CreateTicketTypeRequest{
		Name:     "VIP",
		Price:    decimal.NewFromInt(500),
		Capacity: 2,
	})
	require.NoError(t, err)

	order := h.completedOrder(t, h.customer(t, "Group", "group@example.com", ""), event, 3, vip.ID)

	_, err = h.issuance.IssueTickets(ctx, order.ID, 3, vip.ID)
	assert.ErrorIs(t, err, status.ErrInsufficientInventory)

	assert.Equal(t, 0, h.soldTickets(t, event.ID))
	tickets, err := h.store.ListTicketsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestIssueTickets_TypeFromAnotherEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.event(t, 10)
	other := h.event(t, 10)
	foreign, err := h.events.AddTicketType(ctx, other.ID, CreateTicketTypeRequest{Name: "Early", Price: decimal.NewFromInt(1), Capacity: 5})
	require.NoError(t, err)

	order := h.completedOrder(t, h.customer(t, "Mixed", "mixed@example.com", ""), event, 1, foreign.ID)

	_, err = h.issuance.IssueTickets(ctx, order.ID, 1, foreign.ID)
	assert.ErrorIs(t, err, status.ErrInvalidInput)
	assert.Equal(t, 0, h.soldTickets(t, event.ID))
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{status.ErrInsufficientInventory, "insufficient_inventory"},
		{status.ErrNotFound, "not_found"},
		{status.ErrPaymentNotConfirmed, "payment_not_confirmed"},
		{status.ErrOracleUnavailable, "oracle_unavailable"},
		{errors.New("disk full"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, failureReason(tt.err))
		})
	}
}
