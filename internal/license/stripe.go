package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SignatureTolerance bounds the age of a signed webhook.
const SignatureTolerance = 5 * time.Minute

// EventCheckoutCompleted is the Stripe event that issues a license.
const EventCheckoutCompleted = "checkout.session.completed"

var (
	ErrMissingSignature = errors.New("license: missing signature")
	ErrBadSignature     = errors.New("license: invalid signature")
)

// VerifySignature checks a Stripe-Signature header ("t=<unix>,v1=<hex>")
// against payload. Any v1 entry may match.
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed header", ErrBadSignature)
	}
	if d := now.Sub(time.Unix(ts, 0)); d > SignatureTolerance || d < -SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}

	expected := Sign(payload, secret, time.Unix(ts, 0))
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrBadSignature
}

// Sign computes the v1 signature of payload at t.
func Sign(payload []byte, secret string, t time.Time) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t.Unix())
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeader builds a Stripe-Signature header for payload.
func SignatureHeader(payload []byte, secret string, t time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), hex.EncodeToString(Sign(payload, secret, t)))
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID              string `json:"id"`
	Customer        string `json:"customer"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	AmountTotal int64  `json:"amount_total"`
	Currency    string `json:"currency"`
}

// ParseEvent decodes a webhook payload. ok is false for event types that do
// not issue a license.
func ParseEvent(payload []byte) (c Checkout, ok bool, err error) {
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Checkout{}, false, fmt.Errorf("license: decode event: %w", err)
	}
	if ev.Type != EventCheckoutCompleted {
		return Checkout{}, false, nil
	}
	var s checkoutSession
	if err := json.Unmarshal(ev.Data.Object, &s); err != nil {
		return Checkout{}, false, fmt.Errorf("license: decode session: %w", err)
	}
	if s.ID == "" {
		return Checkout{}, false, errors.New("license: session without id")
	}
	c = Checkout{
		SessionID:  s.ID,
		CustomerID: s.Customer,
		Email:      s.CustomerEmail,
		Amount:     s.AmountTotal,
		Currency:   s.Currency,
	}
	if c.Email == "" && s.CustomerDetails != nil {
		c.Email = s.CustomerDetails.Email
	}
	return c, true, nil
}
