package license

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
)

const maxWebhookBytes = 1 << 20

// ServerConfig holds the secrets of the license server.
type ServerConfig struct {
	// WebhookSecret signs Stripe webhooks. Empty rejects every webhook.
	WebhookSecret string
	// AdminTokenHash is the bcrypt hash of the admin bearer token. Empty
	// disables the admin routes.
	AdminTokenHash string
}

// Server serves the license endpoints.
type Server struct {
	svc    *Service
	cfg    ServerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewServer creates a Server.
func NewServer(svc *Service, cfg ServerConfig, logger *slog.Logger) *Server {
	return &Server{svc: svc, cfg: cfg, logger: logger, now: time.Now}
}

// Routes returns the chi router with every license endpoint under /api.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/verify-license", s.handleVerify)
		r.Post("/webhook/stripe", s.handleWebhook)
		r.Get("/license/session/{id}", s.handleSession)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/stats", s.handleStats)
			r.Post("/licenses/{key}/deactivate", s.handleDeactivate)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

// handleVerify handles POST /api/verify-license. Rejections are 200 with
// valid=false; only store failures are 500.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, VerifyResponse{Error: MsgInvalidFormat})
		return
	}
	resp, err := s.svc.Verify(r.Context(), Normalize(req.LicenseKey), req.Increment)
	if err != nil {
		s.logger.Error("license verification failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, VerifyResponse{Error: MsgVerifyFailed})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWebhook handles POST /api/webhook/stripe.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "Invalid body"})
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "Missing signature"})
		return
	}
	if s.cfg.WebhookSecret == "" {
		s.logger.Error("webhook secret not configured")
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "Webhook secret not configured"})
		return
	}
	if err := VerifySignature(payload, sig, s.cfg.WebhookSecret, s.now()); err != nil {
		s.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "Invalid signature"})
		return
	}

	checkout, ok, err := ParseEvent(payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "Invalid event"})
		return
	}
	if ok {
		if _, err := s.svc.Issue(r.Context(), checkout); err != nil {
			s.logger.Error("license issue failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "Failed to store license"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleSession handles GET /api/license/session/{id} for the checkout
// success page.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	l, err := s.svc.BySession(r.Context(), chi.URLParam(r, "id"))
	if isNotFound(err) {
		writeJSON(w, http.StatusNotFound, errResponse{Error: "License not found"})
		return
	}
	if err != nil {
		s.logger.Error("session lookup failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": l.Key, "email": l.Email})
}

// adminOnly checks the bearer token against the bcrypt hash.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminTokenHash == "" {
			writeJSON(w, http.StatusNotFound, errResponse{Error: "not found"})
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminTokenHash), []byte(token)) != nil {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Deactivate(r.Context(), chi.URLParam(r, "key"))
	switch {
	case errors.Is(err, ErrLicenseNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Error: "License not found"})
	case err != nil:
		s.logger.Error("deactivate failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// HashAdminToken returns the bcrypt hash to put in admin_token_hash.
func HashAdminToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
