package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/credential"
	"ticket-gate/internal/notify"
	"ticket-gate/internal/services"
	"ticket-gate/internal/services/bank"
	"ticket-gate/internal/store/sqlstore"
	"ticket-gate/models"
	"ticket-gate/security"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	store   *sqlstore.Store
	oracle  *bank.Static
	events  *EventHandler
	officer *OfficerHandler
	orders  *OrderHandler
	tickets *TicketHandler
	verify  *VerifyHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "gate.db"), sqlstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	codec, err := credential.NewCodec([]byte("handler-test-secret"))
	require.NoError(t, err)

	clk := clock.NewFake(testNow)
	pub := &notify.Memory{}
	oracle := bank.NewStatic(true)

	officers := services.NewOfficerService(st, clk)
	issuance := services.NewIssuanceService(st, codec, pub, nil, clk)

	return &testServer{
		store:   st,
		oracle:  oracle,
		events:  NewEventHandler(services.NewEventService(st, clk)),
		officer: NewOfficerHandler(officers),
		orders:  NewOrderHandler(services.NewOrderService(st, oracle, issuance, nil, clk, services.OrderOptions{RetryDelay: time.Millisecond})),
		tickets: NewTicketHandler(st),
		verify:  NewVerifyHandler(services.NewVerificationService(st, officers, codec, pub, nil, clk, 0)),
	}
}

func newEvent(method, target string, body any, pathValues map[string]string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Status
}

func (s *testServer) createEvent(t *testing.T, total int) *models.Event {
	t.Helper()
	e, rec := newEvent(http.MethodPost, "/api/v1/events", map[string]any{
		"title":         "That Luang Festival Night",
		"location":      "Vientiane",
		"start_time":    testNow.Add(8 * time.Hour),
		"end_time":      testNow.Add(12 * time.Hour),
		"price":         "80000",
		"total_tickets": total,
	}, nil)
	require.NoError(t, s.events.CreateEvent(e))
	require.Equal(t, http.StatusCreated, rec.Code)
	event := decode[models.Event](t, rec)
	return &event
}

func (s *testServer) customer(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Name: "Dara Inthavong", Email: uuid.NewString() + "@example.com", Role: models.RoleCustomer, CreatedAt: testNow}
	require.NoError(t, s.store.CreateUser(context.Background(), u))
	return u
}

func (s *testServer) paidTickets(t *testing.T, event *models.Event, qty int) []models.Ticket {
	t.Helper()
	buyer := s.customer(t)

	e, rec := newEvent(http.MethodPost, "/api/v1/orders", map[string]any{
		"user_id":  buyer.ID,
		"event_id": event.ID,
		"quantity": qty,
	}, nil)
	require.NoError(t, s.orders.CreateOrder(e))
	order := decode[models.Order](t, rec)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(80000).Mul(decimal.NewFromInt(int64(qty)))))

	e, rec = newEvent(http.MethodPost, "/api/v1/orders/"+order.ID+"/confirm", nil, map[string]string{"orderId": order.ID})
	require.NoError(t, s.orders.ConfirmPayment(e))
	conf := decode[services.Confirmation](t, rec)
	require.Len(t, conf.Tickets, qty)
	return conf.Tickets
}

func (s *testServer) registerOfficer(t *testing.T, eventID string) *models.SecurityOfficer {
	t.Helper()
	e, rec := newEvent(http.MethodPost, "/api/v1/events/"+eventID+"/officers", map[string]any{
		"name":  "Gate A",
		"email": uuid.NewString() + "@example.com",
	}, map[string]string{"eventId": eventID})
	require.NoError(t, s.officer.RegisterOfficer(e))
	require.Equal(t, http.StatusCreated, rec.Code)
	officer := decode[models.SecurityOfficer](t, rec)
	return &officer
}

func TestCreateEvent_BadRequest(t *testing.T) {
	s := newTestServer(t)

	e, _ := newEvent(http.MethodPost, "/api/v1/events", map[string]any{"title": ""}, nil)
	err := s.events.CreateEvent(e)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
}

func TestGetEvent_NotFound(t *testing.T) {
	s := newTestServer(t)

	e, _ := newEvent(http.MethodGet, "/api/v1/events/missing", nil, map[string]string{"eventId": "missing"})
	err := s.events.GetEvent(e)
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
}

func TestTicketTypes(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 100)

	e, rec := newEvent(http.MethodPost, "/", map[string]any{"name": "VIP", "price": "250000", "capacity": 10},
		map[string]string{"eventId": event.ID})
	require.NoError(t, s.events.AddTicketType(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	e, rec = newEvent(http.MethodGet, "/", nil, map[string]string{"eventId": event.ID})
	require.NoError(t, s.events.ListTicketTypes(e))
	body := decode[map[string][]models.TicketType](t, rec)
	require.Len(t, body["ticket_types"], 1)
	assert.Equal(t, "VIP", body["ticket_types"][0].Name)
}

func TestOrderFlow(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 10)
	tickets := s.paidTickets(t, event, 2)

	e, rec := newEvent(http.MethodGet, "/", nil, map[string]string{"orderId": tickets[0].OrderID})
	require.NoError(t, s.orders.ListTickets(e))
	body := decode[map[string][]models.Ticket](t, rec)
	assert.Len(t, body["tickets"], 2)

	e, _ = newEvent(http.MethodPost, "/", nil, map[string]string{"orderId": tickets[0].OrderID})
	err := s.orders.CancelOrder(e)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))
}

func TestConfirmPayment_Declined(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 10)
	buyer := s.customer(t)

	e, rec := newEvent(http.MethodPost, "/api/v1/orders", map[string]any{"user_id": buyer.ID, "event_id": event.ID, "quantity": 1}, nil)
	require.NoError(t, s.orders.CreateOrder(e))
	order := decode[models.Order](t, rec)
	s.oracle.Decline(order.PaymentRef)

	e, _ = newEvent(http.MethodPost, "/", nil, map[string]string{"orderId": order.ID})
	err := s.orders.ConfirmPayment(e)
	assert.Equal(t, http.StatusPaymentRequired, apiStatus(t, err))
}

func TestTicketQR(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 10)
	tickets := s.paidTickets(t, event, 1)

	e, rec := newEvent(http.MethodGet, "/?size=128", nil, map[string]string{"ticketId": tickets[0].ID})
	require.NoError(t, s.tickets.TicketQR(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	e, _ = newEvent(http.MethodGet, "/?size=5", nil, map[string]string{"ticketId": tickets[0].ID})
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, s.tickets.TicketQR(e)))

	e, _ = newEvent(http.MethodGet, "/", nil, map[string]string{"ticketId": "missing"})
	assert.Equal(t, http.StatusNotFound, apiStatus(t, s.tickets.TicketQR(e)))
}

func TestVerify_AcceptThenDuplicate(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 10)
	tickets := s.paidTickets(t, event, 1)
	officer := s.registerOfficer(t, event.ID)

	e, rec := newEvent(http.MethodPost, "/", map[string]any{"qr_data": tickets[0].QRCode}, map[string]string{"eventId": event.ID})
	e.Request.Header.Set(security.OfficerHeader, officer.ID)
	require.NoError(t, s.verify.Verify(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	first := decode[services.VerifyResult](t, rec)
	assert.Equal(t, services.OutcomeAccepted, first.Outcome)
	assert.Equal(t, 1, first.VerifiedToday)

	// officer id in the body works as well
	e, rec = newEvent(http.MethodPost, "/", map[string]any{"officer_id": officer.ID, "qr_data": tickets[0].QRCode},
		map[string]string{"eventId": event.ID})
	require.NoError(t, s.verify.Verify(e))
	assert.Equal(t, http.StatusConflict, rec.Code)
	second := decode[services.VerifyResult](t, rec)
	assert.Equal(t, services.ReasonAlreadyUsed, second.Reason)
	require.NotNil(t, second.UsedAt)

	e, rec = newEvent(http.MethodGet, "/?limit=10", nil, map[string]string{"eventId": event.ID})
	require.NoError(t, s.verify.Verifications(e))
	logs := decode[map[string][]models.VerificationLog](t, rec)
	assert.Len(t, logs["verifications"], 2)
}

func TestVerify_RejectionStatuses(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 10)
	officer := s.registerOfficer(t, event.ID)

	e, rec := newEvent(http.MethodPost, "/", map[string]any{"qr_data": "garbage"}, map[string]string{"eventId": event.ID})
	e.Request.Header.Set(security.OfficerHeader, officer.ID)
	require.NoError(t, s.verify.Verify(e))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e, rec = newEvent(http.MethodPost, "/", map[string]any{"email": "nobody@example.com"}, map[string]string{"eventId": event.ID})
	e.Request.Header.Set(security.OfficerHeader, officer.ID)
	require.NoError(t, s.verify.Verify(e))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e, rec = newEvent(http.MethodPost, "/", map[string]any{"qr_data": "garbage"}, map[string]string{"eventId": event.ID})
	require.NoError(t, s.verify.Verify(e))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	e, _ = newEvent(http.MethodPost, "/", map[string]any{}, map[string]string{"eventId": event.ID})
	e.Request.Header.Set(security.OfficerHeader, officer.ID)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, s.verify.Verify(e)))
}

func TestUpdateOfficer(t *testing.T) {
	s := newTestServer(t)
	event := s.createEvent(t, 10)
	officer := s.registerOfficer(t, event.ID)

	e, rec := newEvent(http.MethodPatch, "/", map[string]any{"active": false}, map[string]string{"officerId": officer.ID})
	require.NoError(t, s.officer.UpdateOfficer(e))
	updated := decode[models.SecurityOfficer](t, rec)
	assert.False(t, updated.Active)

	e, _ = newEvent(http.MethodPatch, "/", map[string]any{}, map[string]string{"officerId": officer.ID})
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, s.officer.UpdateOfficer(e)))

	e, rec = newEvent(http.MethodGet, "/", nil, map[string]string{"eventId": event.ID})
	require.NoError(t, s.officer.ListOfficers(e))
	body := decode[map[string][]models.SecurityOfficer](t, rec)
	assert.Len(t, body["officers"], 1)
}
