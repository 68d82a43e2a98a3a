package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/credential"
	"ticket-gate/internal/notify"
	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/models"
	"ticket-gate/monitoring"
)

type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeRejected Outcome = "REJECTED"
)

// Reason explains a rejection. Rejections are routine at a busy door and are
// returned as values, never as errors.
type Reason string

const (
	ReasonVerifierUnauthorized    Reason = "VERIFIER_UNAUTHORIZED"
	ReasonMalformedCredential     Reason = "MALFORMED_CREDENTIAL"
	ReasonCredentialEventMismatch Reason = "CREDENTIAL_EVENT_MISMATCH"
	ReasonCredentialExpired       Reason = "CREDENTIAL_EXPIRED"
	ReasonTicketNotFound          Reason = "TICKET_NOT_FOUND"
	ReasonAmbiguousHolder         Reason = "AMBIGUOUS_HOLDER"
	ReasonAlreadyUsed             Reason = "ALREADY_USED"
)

func (r Reason) HTTPStatus() int {
	switch r {
	case "":
		return http.StatusOK
	case ReasonVerifierUnauthorized:
		return http.StatusForbidden
	case ReasonMalformedCredential, ReasonCredentialEventMismatch, ReasonCredentialExpired:
		return http.StatusBadRequest
	case ReasonTicketNotFound:
		return http.StatusNotFound
	case ReasonAmbiguousHolder, ReasonAlreadyUsed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// State is a step of one verification attempt.
type State string

const (
	StateReceived    State = "RECEIVED"
	StateAuthorizing State = "AUTHORIZING_VERIFIER"
	StateLocating    State = "LOCATING_TICKET"
	StateValidating  State = "VALIDATING"
	StateRedeeming   State = "REDEEMING"
	StateAccepted    State = "ACCEPTED"
	StateRejected    State = "REJECTED"
)

// Selector is what the door presents: a scanned credential, or one holder
// detail when the QR code cannot be read.
type Selector struct {
	Credential string `json:"qr_data,omitempty"`
	models.HolderQuery
}

func (s Selector) Empty() bool {
	return strings.TrimSpace(s.Credential) == "" && s.HolderQuery.Empty()
}

type VerifyResult struct {
	Outcome       Outcome        `json:"outcome"`
	Reason        Reason         `json:"reason,omitempty"`
	Message       string         `json:"message"`
	Ticket        *models.Ticket `json:"ticket,omitempty"`
	Holder        *models.User   `json:"holder,omitempty"`
	Event         *models.Event  `json:"event,omitempty"`
	UsedAt        *time.Time     `json:"used_at,omitempty"`
	UsedBy        string         `json:"used_by,omitempty"`
	VerifiedToday int            `json:"verified_today"`
	Trace         []State        `json:"trace"`
}

func (r *VerifyResult) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}

func (r *VerifyResult) HTTPStatus() int {
	return r.Reason.HTTPStatus()
}

func (r *VerifyResult) enter(s State) {
	r.Trace = append(r.Trace, s)
}

type VerificationService struct {
	store     store.Store
	officers  *OfficerService
	codec     *credential.Codec
	publisher notify.Publisher
	monitor   *monitoring.Monitor
	clock     clock.Clock
	maxAge    time.Duration
}

// NewVerificationService builds the door protocol. maxAge bounds how old a
// credential may be; zero disables the check.
func NewVerificationService(st store.Store, officers *OfficerService, codec *credential.Codec, pub notify.Publisher, mon *monitoring.Monitor, clk clock.Clock, maxAge time.Duration) *VerificationService {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &VerificationService{
		store:     st,
		officers:  officers,
		codec:     codec,
		publisher: pub,
		monitor:   mon,
		clock:     clk,
		maxAge:    maxAge,
	}
}

// Verify runs one attempt to admit the holder of a ticket for eventID.
// Business rejections come back in the result; the error is reserved for
// store failures and an empty selector.
func (s *VerificationService) Verify(ctx context.Context, eventID, verifierID string, sel Selector) (*VerifyResult, error) {
	started := time.Now()
	res := &VerifyResult{Trace: []State{StateReceived}}

	res.enter(StateAuthorizing)
	officer, err := s.officers.Authorize(ctx, verifierID, eventID)
	if errors.Is(err, status.ErrVerifierUnauthorized) {
		s.reject(res, ReasonVerifierUnauthorized, "verifier is not active for this event")
		s.finish(ctx, eventID, "", nil, res, started)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	sel.HolderQuery = sel.HolderQuery.Normalized()
	if sel.Empty() {
		return nil, fmt.Errorf("%w: a credential or holder detail is required", status.ErrInvalidInput)
	}

	res.enter(StateLocating)
	candidates, claims, err := s.locate(ctx, eventID, sel, res)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.finish(ctx, eventID, officer.ID, nil, res, started)
		return res, nil
	}
	ticket := &candidates[0]

	res.enter(StateValidating)
	now := s.clock.Now()
	if claims != nil && claims.Expired(now, s.maxAge) {
		s.reject(res, ReasonCredentialExpired, fmt.Sprintf("credential issued %s is too old", claims.IssuedTime().Format(time.RFC3339)))
		s.finish(ctx, eventID, officer.ID, ticket, res, started)
		return res, nil
	}

	res.enter(StateRedeeming)
	if err := s.redeem(ctx, officer, candidates, now, res); err != nil {
		return nil, err
	}
	if res.Ticket != nil {
		ticket = res.Ticket
	}

	if res.Accepted() {
		s.attachDetail(ctx, res)
	}
	s.finish(ctx, eventID, officer.ID, ticket, res, started)
	return res, nil
}

// locate returns the tickets redeem may try, in order. No tickets means the
// attempt was rejected.
func (s *VerificationService) locate(ctx context.Context, eventID string, sel Selector, res *VerifyResult) ([]models.Ticket, *credential.Claims, error) {
	if strings.TrimSpace(sel.Credential) != "" {
		claims, err := s.codec.Decode(sel.Credential)
		if err != nil {
			s.reject(res, ReasonMalformedCredential, "credential could not be read")
			slog.Info("Rejected malformed credential", "event_id", eventID, "error", err)
			return nil, nil, nil
		}
		if claims.EventID != eventID {
			s.reject(res, ReasonCredentialEventMismatch, "ticket belongs to another event")
			return nil, nil, nil
		}

		ticket, err := s.store.FindTicketByCredential(ctx, claims.EventID, claims.UserID, claims.OrderID, claims.TicketNumber)
		if errors.Is(err, status.ErrNotFound) {
			s.reject(res, ReasonTicketNotFound, "no ticket matches this credential")
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return []models.Ticket{*ticket}, claims, nil
	}

	tickets, err := s.store.FindTicketsByHolder(ctx, eventID, sel.HolderQuery)
	if err != nil {
		return nil, nil, err
	}
	if len(tickets) == 0 {
		s.reject(res, ReasonTicketNotFound, "no ticket matches this holder")
		return nil, nil, nil
	}

	holders := make(map[string]struct{})
	for _, t := range tickets {
		holders[t.UserID] = struct{}{}
	}
	if len(holders) > 1 {
		s.reject(res, ReasonAmbiguousHolder, fmt.Sprintf("%d different holders match, ask for another detail", len(holders)))
		return nil, nil, nil
	}

	// Unused tickets sort first, lowest number first.
	return tickets, nil, nil
}

// redeem flips the first candidate still unused and writes the audit entry in
// one transaction. A candidate lost to a concurrent scan is skipped.
func (s *VerificationService) redeem(ctx context.Context, officer *models.SecurityOfficer, candidates []models.Ticket, now time.Time, res *VerifyResult) error {
	return s.store.Transact(ctx, func(q store.Queries) error {
		var ticket *models.Ticket
		for i := range candidates {
			if candidates[i].IsUsed {
				continue
			}
			ok, err := q.RedeemTicket(ctx, candidates[i].ID, officer.ID, now)
			if err != nil {
				return err
			}
			if ok {
				ticket = &candidates[i]
				break
			}
		}

		if ticket == nil {
			ticket = &candidates[0]
			current, err := q.GetTicket(ctx, ticket.ID)
			if err != nil {
				return err
			}
			res.Ticket = current
			res.UsedAt = current.UsedAt
			res.UsedBy = current.UsedBy
			s.reject(res, ReasonAlreadyUsed, "ticket was already used")

			return q.AppendVerificationLog(ctx, &models.VerificationLog{
				ID:         uuid.NewString(),
				TicketID:   ticket.ID,
				VerifierID: officer.ID,
				EventID:    ticket.EventID,
				Action:     models.ActionDuplicateScan,
				Detail:     fmt.Sprintf("ticket #%d already used by %s", current.TicketNumber, current.UsedBy),
				CreatedAt:  now,
			})
		}

		err := q.AppendVerificationLog(ctx, &models.VerificationLog{
			ID:         uuid.NewString(),
			TicketID:   ticket.ID,
			VerifierID: officer.ID,
			EventID:    ticket.EventID,
			Action:     models.ActionVerified,
			Detail:     fmt.Sprintf("ticket #%d admitted", ticket.TicketNumber),
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		count, err := q.CountVerificationsSince(ctx, officer.ID, ticket.EventID, models.ActionVerified, clock.StartOfDay(now))
		if err != nil {
			return err
		}

		used := now
		redeemed := *ticket
		redeemed.IsUsed = true
		redeemed.UsedAt = &used
		redeemed.UsedBy = officer.ID

		res.Outcome = OutcomeAccepted
		res.Reason = ""
		res.Message = "ticket verified"
		res.Ticket = &redeemed
		res.VerifiedToday = count
		res.enter(StateAccepted)
		return nil
	})
}

// attachDetail adds holder and event for the door display. Missing detail
// does not undo an admission.
func (s *VerificationService) attachDetail(ctx context.Context, res *VerifyResult) {
	holder, err := s.store.GetUser(ctx, res.Ticket.UserID)
	if err != nil {
		slog.Error("Failed to load ticket holder", "error", err, "ticket_id", res.Ticket.ID)
	} else {
		res.Holder = holder
	}

	event, err := s.store.GetEvent(ctx, res.Ticket.EventID)
	if err != nil {
		slog.Error("Failed to load event", "error", err, "event_id", res.Ticket.EventID)
	} else {
		res.Event = event
	}
}

func (s *VerificationService) reject(res *VerifyResult, reason Reason, message string) {
	res.Outcome = OutcomeRejected
	res.Reason = reason
	res.Message = message
	res.enter(StateRejected)
}

func (s *VerificationService) finish(ctx context.Context, eventID, officerID string, ticket *models.Ticket, res *VerifyResult, started time.Time) {
	s.monitor.TrackVerification(eventID, string(res.Outcome), string(res.Reason), time.Since(started))

	if res.Accepted() {
		slog.Info("Ticket verified", "event_id", eventID, "officer_id", officerID, "ticket_id", res.Ticket.ID)
	} else {
		slog.Info("Verification rejected", "event_id", eventID, "officer_id", officerID, "reason", res.Reason)
	}

	if officerID == "" {
		return
	}
	msg := notify.Message{
		"type":       notify.TypeGateScan,
		"event_id":   eventID,
		"officer_id": officerID,
		"outcome":    string(res.Outcome),
		"reason":     string(res.Reason),
		"at":         s.clock.Now().UnixMilli(),
	}
	if ticket != nil {
		msg["ticket_id"] = ticket.ID
		msg["ticket_number"] = ticket.TicketNumber
	}
	if err := s.publisher.Publish(ctx, notify.GateChannel(eventID), msg); err != nil {
		slog.Error("Failed to publish gate scan", "error", err, "event_id", eventID)
	}
}

// History lists the audit trail for an event, newest first.
func (s *VerificationService) History(ctx context.Context, eventID string, limit int) ([]models.VerificationLog, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListVerificationLogs(ctx, eventID, limit)
}
