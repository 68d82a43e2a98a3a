package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticket-gate/internal/services/bank"
	"ticket-gate/internal/status"
)

const (
	authPath  = "/api/v1/auth/token"
	checkPath = "/api/v1/transactions/check"
)

var errUnauthorized = errors.New("gateway: 401 unauthorized")

type Config struct {
	BaseURL   string
	PartnerID string
	ClientID  string
	ClientKey string
	HMACKey   string
	Timeout   time.Duration
}

// Client verifies payment references against the acquiring bank's gateway.
// Every request body is signed with HMAC-SHA256 in the SignedHash header and
// carries a bearer token obtained from the auth endpoint.
type Client struct {
	// baseURL is the gateway root, without trailing slash.
	baseURL string

	partnerID string
	clientID  string
	clientKey string
	hmacKey   string

	// accessToken is "<type> <token>" as sent in Authorization.
	accessToken string

	// mu guards accessToken.
	mu sync.Mutex

	// refresh wakes RefreshLoop early after a 401.
	refresh chan struct{}

	hc *http.Client
}

func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		partnerID: cfg.PartnerID,
		clientID:  cfg.ClientID,
		clientKey: cfg.ClientKey,
		hmacKey:   cfg.HMACKey,
		refresh:   make(chan struct{}, 1),
		hc:        &http.Client{Timeout: timeout},
	}
}

func (c *Client) Provider() bank.Provider {
	return bank.ProviderGateway
}

// Connect authenticates and stores a fresh access token.
func (c *Client) Connect(ctx context.Context) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	c.setAccessToken(token)
	return nil
}

// RefreshLoop renews the access token every interval, or right away after a
// 401, retrying with exponential backoff until ctx is done.
func (c *Client) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refresh:
			slog.Info("Gateway token refresh requested")
		}

		backOff := time.Second
	Retry:
		for {
			err := c.Connect(ctx)
			if err == nil {
				break Retry
			}
			slog.Error("Gateway token refresh failed", "error", err, "retry_in", backOff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backOff):
				backOff *= 2
			}
		}
	}
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) requestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("gateway: authenticate: randomNumber: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"requestId":    number,
		"partnerId":    c.partnerID,
		"clientId":     c.clientID,
		"clientSecret": c.clientKey,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: authenticate: %w", err)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	if err := c.post(ctx, authPath, body, false, &reply); err != nil {
		return "", fmt.Errorf("gateway: authenticate: %w", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("gateway: authenticate: status %s: %s", reply.Status, reply.Message)
	}
	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

type transactionPayload struct {
	RefNo      string          `json:"refNo"`
	BillNumber string          `json:"billNumber"`
	ExternalID string          `json:"exReferenceNo"`
	Currency   string          `json:"sourceCurrency"`
	Amount     decimal.Decimal `json:"txnAmount"`
	State      string          `json:"txnState"`
	PaidAt     string          `json:"txnDateTime"`
}

func (p *transactionPayload) toDomain(reference string) (*status.Transaction, error) {
	tx := &status.Transaction{
		Reference:  reference,
		ExternalID: p.ExternalID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     status.TransactionFailure,
	}
	if tx.ExternalID == "" {
		tx.ExternalID = p.RefNo
	}
	if strings.EqualFold(p.State, "SUCCESS") {
		tx.Status = status.TransactionSuccess
	}
	if p.PaidAt != "" {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.PaidAt, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse txnDateTime %q: %w", p.PaidAt, err)
		}
		tx.PaidAt = ts
	}
	return tx, nil
}

// CheckTransaction asks the gateway for the verdict on reference. An unknown
// reference is a failure verdict, not an error. On 401 the token is renewed
// once and the call repeated.
func (c *Client) CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	tx, err := c.checkTransaction(ctx, reference)
	if errors.Is(err, errUnauthorized) {
		if cerr := c.Connect(ctx); cerr != nil {
			c.requestRefresh()
			return nil, fmt.Errorf("gateway: check %s: %w", reference, cerr)
		}
		tx, err = c.checkTransaction(ctx, reference)
	}
	return tx, err
}

func (c *Client) checkTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("gateway: check %s: randomNumber: %w", reference, err)
	}

	body, err := json.Marshal(map[string]string{"requestId": number, "billNumber": reference})
	if err != nil {
		return nil, fmt.Errorf("gateway: check %s: %w", reference, err)
	}

	var reply struct {
		Message string             `json:"message"`
		Status  string             `json:"status"`
		Data    transactionPayload `json:"data"`
	}
	if err := c.post(ctx, checkPath, body, true, &reply); err != nil {
		return nil, fmt.Errorf("gateway: check %s: %w", reference, err)
	}

	switch reply.Status {
	case "OK":
	case "NOT_FOUND":
		return &status.Transaction{Reference: reference, Status: status.TransactionFailure}, nil
	default:
		return nil, fmt.Errorf("gateway: check %s: status %s: %s", reference, reply.Status, reply.Message)
	}

	tx, err := reply.Data.toDomain(reference)
	if err != nil {
		return nil, fmt.Errorf("gateway: check %s: %w", reference, err)
	}
	return tx, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, authorized bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256(body, []byte(c.hmacKey)))
	if authorized {
		req.Header.Set("Authorization", c.getAccessToken())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: http %d", status.ErrOracleUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
