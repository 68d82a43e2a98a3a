// Package credential mints and parses the opaque payload embedded in a
// ticket's QR code.
//
// Wire format, base64url without padding:
//
//	version (1 byte) || CBOR(claims) || BLAKE3-keyed tag (32 bytes)
//
// The tag covers the version byte and the CBOR body. The MAC key is derived
// from the server secret with HKDF-SHA256, so the raw secret never keys the
// hash directly.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const (
	version1 byte = 0x01
	tagSize       = 32
	keySize       = 32
)

var hkdfInfo = []byte("ticket-credential-mac v1")

var (
	ErrMalformed        = errors.New("credential: malformed payload")
	ErrMissingField     = errors.New("credential: required field missing")
	ErrInvalidSignature = errors.New("credential: invalid signature")
	ErrEmptySecret      = errors.New("credential: empty secret")
)

// Claims is the structured record carried by a credential. Integer keys keep
// the CBOR body small enough for a medium-density QR code.
type Claims struct {
	EventID      string `cbor:"1,keyasint,omitempty" json:"event_id"`
	UserID       string `cbor:"2,keyasint,omitempty" json:"user_id"`
	OrderID      string `cbor:"3,keyasint,omitempty" json:"order_id"`
	TicketNumber int    `cbor:"4,keyasint,omitempty" json:"ticket_number"`
	IssuedAt     int64  `cbor:"5,keyasint,omitempty" json:"issued_at"`
}

// IssuedTime returns the mint time carried by the claims.
func (c *Claims) IssuedTime() time.Time {
	return time.UnixMilli(c.IssuedAt)
}

// Expired reports whether the claims are older than maxAge at now. A
// non-positive maxAge disables the check.
func (c *Claims) Expired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(c.IssuedTime()) > maxAge
}

func (c *Claims) validate() error {
	switch {
	case c.EventID == "":
		return fmt.Errorf("%w: event id", ErrMissingField)
	case c.UserID == "":
		return fmt.Errorf("%w: user id", ErrMissingField)
	case c.OrderID == "":
		return fmt.Errorf("%w: order id", ErrMissingField)
	case c.TicketNumber <= 0:
		return fmt.Errorf("%w: ticket number", ErrMissingField)
	}
	return nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("credential: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("credential: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec encodes and decodes credentials under one server secret. It holds
// no mutable state and is safe for concurrent use.
type Codec struct {
	key []byte
}

func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("credential: HKDF key derivation failed: %w", err)
	}
	return &Codec{key: key}, nil
}

// Encode mints the payload for one admission unit. The result is immutable:
// the same ticket is never re-encoded.
func (c *Codec) Encode(eventID, userID, orderID string, ticketNumber int, issuedAtMillis int64) (string, error) {
	claims := Claims{
		EventID:      eventID,
		UserID:       userID,
		OrderID:      orderID,
		TicketNumber: ticketNumber,
		IssuedAt:     issuedAtMillis,
	}
	if err := claims.validate(); err != nil {
		return "", err
	}

	body, err := encMode.Marshal(&claims)
	if err != nil {
		return "", fmt.Errorf("credential: encoding claims: %w", err)
	}
	return c.seal(body), nil
}

// Decode parses and authenticates a scanned payload. The tag is checked
// before the body is parsed, so a forged payload never reaches the CBOR
// decoder. Authorization and freshness are left to the caller.
func (c *Codec) Decode(raw string) (*Claims, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) < 1+tagSize+1 {
		return nil, fmt.Errorf("%w: payload too short", ErrMalformed)
	}
	if data[0] != version1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrMalformed, data[0])
	}

	signed, tag := data[:len(data)-tagSize], data[len(data)-tagSize:]
	if subtle.ConstantTimeCompare(tag, c.mac(signed)) != 1 {
		return nil, ErrInvalidSignature
	}

	var claims Claims
	if err := decMode.Unmarshal(signed[1:], &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *Codec) seal(body []byte) string {
	signed := make([]byte, 0, 1+len(body)+tagSize)
	signed = append(signed, version1)
	signed = append(signed, body...)
	signed = append(signed, c.mac(signed)...)
	return base64.RawURLEncoding.EncodeToString(signed)
}

func (c *Codec) mac(data []byte) []byte {
	hasher, err := blake3.NewKeyed(c.key)
	if err != nil {
		panic("credential: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hasher.Sum(nil)
}
