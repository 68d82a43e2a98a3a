package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/services/bank"
	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/models"
	"ticket-gate/monitoring"
	"ticket-gate/utils"
)

type CreateOrderRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	EventID      string `json:"event_id" validate:"required"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity" validate:"required,min=1,max=20"`
}

// Confirmation is an order together with its tickets.
type Confirmation struct {
	Order   *models.Order   `json:"order"`
	Tickets []models.Ticket `json:"tickets"`
}

// PaymentNotification is what the payment channel pushes. It only names the
// order; the verdict always comes from the oracle.
type PaymentNotification struct {
	PaymentRef string `json:"payment_ref"`
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
}

type OrderOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Breaker    *utils.CircuitBreaker
}

type OrderService struct {
	store      store.Store
	oracle     bank.Oracle
	issuance   *IssuanceService
	breaker    *utils.CircuitBreaker
	monitor    *monitoring.Monitor
	clock      clock.Clock
	maxRetries int
	retryDelay time.Duration
}

func NewOrderService(st store.Store, oracle bank.Oracle, issuance *IssuanceService, mon *monitoring.Monitor, clk clock.Clock, opts OrderOptions) *OrderService {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.Breaker == nil {
		opts.Breaker = utils.NewCircuitBreakerWithSettings("payment-oracle", utils.Settings{MaxRequests: 10, Timeout: 30 * time.Second})
	}
	return &OrderService{
		store:      st,
		oracle:     oracle,
		issuance:   issuance,
		breaker:    opts.Breaker,
		monitor:    mon,
		clock:      clk,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// CreateOrder opens a PENDING order priced from the selected variant. The
// availability check here is advisory; inventory is only taken at issuance.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("user %s: %w", req.UserID, err)
	}
	event, err := s.store.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", req.EventID, err)
	}

	var ticketType *models.TicketType
	if req.TicketTypeID != "" {
		ticketType, err = s.store.GetTicketType(ctx, req.TicketTypeID)
		if err != nil {
			return nil, fmt.Errorf("ticket type %s: %w", req.TicketTypeID, err)
		}
		if ticketType.EventID != event.ID {
			return nil, fmt.Errorf("ticket type %s belongs to another event: %w", req.TicketTypeID, status.ErrInvalidInput)
		}
	}

	variant := models.ResolveVariant(event, ticketType)
	if variant.Sold+req.Quantity > variant.Capacity || event.SoldTickets+req.Quantity > event.TotalTickets {
		return nil, fmt.Errorf("%s has %d left: %w", variant.Name, variant.Capacity-variant.Sold, status.ErrInsufficientInventory)
	}

	ref, err := utils.PaymentReference()
	if err != nil {
		return nil, fmt.Errorf("payment reference: %w", err)
	}

	now := s.clock.Now()
	order := &models.Order{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		EventID:      event.ID,
		TicketTypeID: variant.TypeID,
		Quantity:     req.Quantity,
		TotalAmount:  variant.Total(req.Quantity),
		Status:       models.OrderPending,
		PaymentRef:   ref,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	slog.Info("Order created", "order_id", order.ID, "event_id", order.EventID, "quantity", order.Quantity, "payment_ref", ref)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *OrderService) ListTickets(ctx context.Context, orderID string) ([]models.Ticket, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListTicketsByOrder(ctx, orderID)
}

// ConfirmPayment asks the oracle about the order's payment and, on success,
// completes the order and issues its tickets in one transaction. Calling it
// again for a completed order returns the tickets already issued.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string) (*Confirmation, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderCompleted:
		tickets, err := s.issuance.IssueTickets(ctx, order.ID, order.Quantity, order.TicketTypeID)
		if err != nil {
			return nil, err
		}
		return &Confirmation{Order: order, Tickets: tickets}, nil
	case models.OrderPending:
	default:
		return nil, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, status.ErrOrderNotPending)
	}

	tx, err := s.checkPayment(ctx, order.PaymentRef)
	if err != nil {
		s.monitor.TrackIssuanceFailure(failureReason(err))
		return nil, err
	}
	if !tx.Succeeded() {
		s.monitor.TrackIssuanceFailure("payment_not_confirmed")
		slog.Info("Payment not confirmed", "order_id", order.ID, "payment_ref", order.PaymentRef)
		return nil, fmt.Errorf("order %s: %w", order.ID, status.ErrPaymentNotConfirmed)
	}
	if !tx.Amount.IsZero() && !tx.Amount.Equal(order.TotalAmount) {
		s.monitor.TrackIssuanceFailure("amount_mismatch")
		slog.Warn("Paid amount does not match order", "order_id", order.ID, "paid", tx.Amount.String(), "expected", order.TotalAmount.String())
		return nil, fmt.Errorf("order %s paid %s of %s: %w", order.ID, tx.Amount, order.TotalAmount, status.ErrPaymentNotConfirmed)
	}

	var (
		tickets []models.Ticket
		minted  bool
	)
	err = s.store.Transact(ctx, func(q store.Queries) error {
		completed, err := q.CompleteOrder(ctx, order.ID, tx.ExternalID, s.clock.Now())
		if err != nil {
			return err
		}
		if !completed {
			current, err := q.GetOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			if current.Status != models.OrderCompleted {
				return fmt.Errorf("order %s is %s: %w", order.ID, current.Status, status.ErrOrderNotPending)
			}
			// A concurrent confirmation got here first.
			tickets, err = q.ListTicketsByOrder(ctx, order.ID)
			return err
		}

		tickets, minted, err = s.issuance.issue(ctx, q, order, order.Quantity, order.TicketTypeID)
		return err
	})
	if err != nil {
		s.monitor.TrackIssuanceFailure(failureReason(err))
		slog.Error("Failed to complete order", "error", err, "order_id", order.ID)
		return nil, err
	}

	order, err = s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if minted {
		s.issuance.announce(ctx, order, tickets)
	}
	return &Confirmation{Order: order, Tickets: tickets}, nil
}

func (s *OrderService) ConfirmPaymentByReference(ctx context.Context, paymentRef string) (*Confirmation, error) {
	order, err := s.store.GetOrderByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	return s.ConfirmPayment(ctx, order.ID)
}

// checkPayment calls the oracle through the breaker, retrying transport
// failures with exponential backoff.
func (s *OrderService) checkPayment(ctx context.Context, reference string) (*status.Transaction, error) {
	var tx *status.Transaction
	err := utils.Retry(ctx, s.maxRetries, s.retryDelay, retryableOracleError, func() error {
		result, err := s.breaker.Execute(ctx, func() (any, error) {
			return s.oracle.CheckTransaction(ctx, reference)
		})
		if err != nil {
			s.monitor.TrackOracleRequest("error")
			slog.Warn("Payment oracle call failed", "error", err, "payment_ref", reference)
			return err
		}
		tx = result.(*status.Transaction)
		s.monitor.TrackOracleRequest(string(tx.Status))
		return nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrOpenState) || errors.Is(err, utils.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", status.ErrOracleUnavailable, err)
		}
		return nil, err
	}
	return tx, nil
}

func retryableOracleError(err error) bool {
	return errors.Is(err, status.ErrOracleUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// CancelOrder moves a PENDING order to CANCELLED.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	cancelled, err := s.store.CancelOrder(ctx, orderID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, status.ErrOrderNotPending)
	}

	slog.Info("Order cancelled", "order_id", order.ID)
	return order, nil
}

// HandleNotification reacts to a payment channel message by asking the
// oracle for the order's real status.
func (s *OrderService) HandleNotification(ctx context.Context, payload any) {
	var n PaymentNotification
	if err := decodeNotification(payload, &n); err != nil {
		slog.Warn("Ignoring payment notification", "error", err)
		return
	}

	var err error
	switch {
	case n.OrderID != "":
		_, err = s.ConfirmPayment(ctx, n.OrderID)
	case n.PaymentRef != "":
		_, err = s.ConfirmPaymentByReference(ctx, n.PaymentRef)
	default:
		slog.Warn("Payment notification names no order")
		return
	}
	if err != nil {
		slog.Error("Failed to confirm payment from notification", "error", err, "order_id", n.OrderID, "payment_ref", n.PaymentRef)
	}
}

func decodeNotification(payload any, n *PaymentNotification) error {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, n)
}
