package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/tripshield/inquiry-desk/internal/whatsapp"
)

const maxWebhookBodyBytes = 1 << 20

// WhatsAppWebhook receives provider notifications. It verifies, parses,
// and enqueues; the worker does everything else, so the provider gets
// its acknowledgement before any model call happens.
func (a *API) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	if a.webhookSecret != "" {
		signature := r.Header.Get(whatsapp.SignatureHeader)
		if !whatsapp.VerifySignature(a.webhookSecret, body, signature) {
			a.logf("webhook rejected: bad signature")
			writeError(w, r, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
			return
		}
	}

	event, err := whatsapp.ParseEvent(body)
	if err != nil {
		if errors.Is(err, whatsapp.ErrIgnoredEvent) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "unparseable webhook event")
		return
	}

	taskID, duplicate, err := a.intake.EnqueueWhatsAppEvent(r.Context(), event)
	if err != nil {
		a.logf("webhook enqueue failed message=%s error=%v", event.MessageID, err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to enqueue message")
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"task_id": taskID})
}
