package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/hippomind/internal/apperr"
	"github.com/starford/hippomind/internal/mindmap"
)

// DefaultMaxActivations is the number of devices one key may activate.
const DefaultMaxActivations = 3

var (
	ErrLicenseNotFound = fmt.Errorf("license %w", apperr.ErrNotFound)
	ErrInactive        = fmt.Errorf("license inactive: %w", apperr.ErrConflict)
	ErrActivationLimit = fmt.Errorf("activation limit reached: %w", apperr.ErrConflict)
)

// License is the record stored per issued key.
type License struct {
	Key              string    `json:"key"`
	Email            string    `json:"email"`
	StripeSessionID  string    `json:"stripeSessionId"`
	StripeCustomerID string    `json:"stripeCustomerId,omitempty"`
	ProductName      string    `json:"productName"`
	Price            int64     `json:"price"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"createdAt"`
	Active           bool      `json:"active"`
	Activations      int       `json:"activations"`
	MaxActivations   int       `json:"maxActivations"`
}

// Stats summarises the store for the admin endpoint.
type Stats struct {
	Total            int `json:"total"`
	Active           int `json:"active"`
	Inactive         int `json:"inactive"`
	TotalActivations int `json:"totalActivations"`
}

// Store persists licenses. Put upserts by key. IncrementActivation is
// atomic: it fails with ErrInactive or ErrActivationLimit instead of
// exceeding MaxActivations, and returns the new count.
type Store interface {
	Put(ctx context.Context, l License) error
	Get(ctx context.Context, key string) (License, error)
	GetBySession(ctx context.Context, sessionID string) (License, error)
	IncrementActivation(ctx context.Context, key string) (int, error)
	Deactivate(ctx context.Context, key string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Checkout is the part of a completed Stripe checkout session a license is
// issued from.
type Checkout struct {
	SessionID  string
	CustomerID string
	Email      string
	Amount     int64
	Currency   string
}

// NewLicense builds an active license for a completed checkout.
func NewLicense(c Checkout, now time.Time) License {
	email := c.Email
	if email == "" {
		email = "unknown@email.com"
	}
	currency := c.Currency
	if currency == "" {
		currency = "usd"
	}
	return License{
		Key:              KeyFromSession(c.SessionID),
		Email:            email,
		StripeSessionID:  c.SessionID,
		StripeCustomerID: c.CustomerID,
		ProductName:      mindmap.AppName,
		Price:            c.Amount,
		Currency:         currency,
		CreatedAt:        now.UTC(),
		Active:           true,
		MaxActivations:   DefaultMaxActivations,
	}
}

func isNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }
