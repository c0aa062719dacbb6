package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// User-facing verification messages. Clients display them verbatim.
const (
	MsgInvalidFormat   = "Invalid license key format"
	MsgNotFound        = "License key not found"
	MsgDeactivated     = "License has been deactivated"
	MsgVerifyFailed    = "Verification failed"
	msgActivationLimit = "Maximum activations (%d) reached. Contact support to reset."
)

// VerifyRequest is the body of POST /api/verify-license.
type VerifyRequest struct {
	LicenseKey string `json:"license_key"`
	Increment  bool   `json:"increment"`
}

// VerifyResponse answers a verification. Error is set when Valid is false.
type VerifyResponse struct {
	Valid          bool   `json:"valid"`
	Email          string `json:"email,omitempty"`
	Activations    int    `json:"activations"`
	MaxActivations int    `json:"maxActivations,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Service implements license issuance and verification over a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Verify checks key and, with increment, consumes one activation. A nil
// error means the response is final; a non-nil error is a store failure.
func (s *Service) Verify(ctx context.Context, key string, increment bool) (VerifyResponse, error) {
	if !ValidFormat(key) {
		return VerifyResponse{Error: MsgInvalidFormat}, nil
	}
	l, err := s.store.Get(ctx, key)
	if isNotFound(err) {
		return VerifyResponse{Error: MsgNotFound}, nil
	}
	if err != nil {
		return VerifyResponse{Error: MsgVerifyFailed}, err
	}
	if !l.Active {
		return VerifyResponse{Error: MsgDeactivated}, nil
	}

	activations := l.Activations
	if increment {
		activations, err = s.store.IncrementActivation(ctx, key)
		switch {
		case errors.Is(err, ErrActivationLimit):
			return VerifyResponse{Error: fmt.Sprintf(msgActivationLimit, l.MaxActivations)}, nil
		case errors.Is(err, ErrInactive):
			return VerifyResponse{Error: MsgDeactivated}, nil
		case err != nil:
			return VerifyResponse{Error: MsgVerifyFailed}, err
		}
		s.logger.Info("license activated",
			slog.String("key", key),
			slog.Int("activations", activations))
	}

	return VerifyResponse{
		Valid:          true,
		Email:          l.Email,
		Activations:    activations,
		MaxActivations: l.MaxActivations,
	}, nil
}

// Issue stores the license for a completed checkout. Repeated calls for the
// same session return the same key.
func (s *Service) Issue(ctx context.Context, c Checkout) (License, error) {
	l := NewLicense(c, s.now())
	if err := s.store.Put(ctx, l); err != nil {
		return License{}, err
	}
	s.logger.Info("license issued",
		slog.String("key", l.Key),
		slog.String("session", c.SessionID))
	return l, nil
}

// BySession returns the license issued for a checkout session.
func (s *Service) BySession(ctx context.Context, sessionID string) (License, error) {
	return s.store.GetBySession(ctx, sessionID)
}

// Deactivate revokes key.
func (s *Service) Deactivate(ctx context.Context, key string) error {
	if err := s.store.Deactivate(ctx, key); err != nil {
		return err
	}
	s.logger.Info("license deactivated", slog.String("key", key))
	return nil
}

// Stats returns store totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}
