package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/tripshield/inquiry-desk/internal/auth"
	"github.com/tripshield/inquiry-desk/internal/http/middleware"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	inquiries     *service.InquiryService
	intake        *service.IntakeService
	users         repository.UsersRepository
	sessions      auth.SessionStore
	webhookSecret string
	sessionTTL    time.Duration
	ping          func(context.Context) error
	logger        *log.Logger
}

type APIDependencies struct {
	Inquiries *service.InquiryService
	Intake    *service.IntakeService
	Users     repository.UsersRepository
	Sessions  auth.SessionStore
	// WebhookSecret signs WhatsApp webhook bodies. Empty disables
	// signature checks, for local setups without a shared secret.
	WebhookSecret string
	SessionTTL    time.Duration
	// Ping reports backing-store health, nil when there is nothing to check.
	Ping   func(context.Context) error
	Logger *log.Logger
}

func NewAPI(deps APIDependencies) *API {
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &API{
		inquiries:     deps.Inquiries,
		intake:        deps.Intake,
		users:         deps.Users,
		sessions:      deps.Sessions,
		webhookSecret: deps.WebhookSecret,
		sessionTTL:    ttl,
		ping:          deps.Ping,
		logger:        deps.Logger,
	}
}

func (a *API) logf(format string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
