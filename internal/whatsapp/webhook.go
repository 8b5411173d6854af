package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Hmac"

// ErrIgnoredEvent marks webhook deliveries that are valid but carry
// nothing to process (instance state changes, calls, read receipts).
var ErrIgnoredEvent = errors.New("ignored webhook event")

// VerifySignature checks the webhook HMAC in constant time. The header
// value may carry an optional "sha256=" prefix.
func VerifySignature(secret string, body []byte, signature string) bool {
	provided := strings.ToLower(strings.TrimSpace(signature))
	provided = strings.TrimPrefix(provided, "sha256=")
	if provided == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// Sign produces the signature value for a body, for outbound tests and
// local tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Event is a normalized inbound message event.
type Event struct {
	Type        string
	MessageID   string
	ChatID      string
	SenderName  string
	MessageType string
	Text        string
	MediaURL    string
	MediaMime   string
	Latitude    *float64
	Longitude   *float64
	SentAt      time.Time
	FromMe      bool
}

type rawEvent struct {
	TypeWebhook string `json:"typeWebhook"`
	Timestamp   int64  `json:"timestamp"`
	IDMessage   string `json:"idMessage"`
	SenderData  struct {
		ChatID     string `json:"chatId"`
		Sender     string `json:"sender"`
		SenderName string `json:"senderName"`
	} `json:"senderData"`
	MessageData struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
		ExtendedTextMessageData struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData"`
		FileMessageData struct {
			DownloadURL string `json:"downloadUrl"`
			Caption     string `json:"caption"`
			MimeType    string `json:"mimeType"`
			FileName    string `json:"fileName"`
		} `json:"fileMessageData"`
		LocationMessageData *struct {
			Latitude     float64 `json:"latitude"`
			Longitude    float64 `json:"longitude"`
			NameLocation string  `json:"nameLocation"`
			Address      string  `json:"address"`
		} `json:"locationMessageData"`
	} `json:"messageData"`
}

// ParseEvent decodes a webhook delivery. Deliveries that are not message
// events return ErrIgnoredEvent; malformed message events return a plain
// error.
func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}

	event := &Event{Type: raw.TypeWebhook, SenderName: strings.TrimSpace(raw.SenderData.SenderName)}
	switch raw.TypeWebhook {
	case "incomingMessageReceived":
	case "outgoingMessageReceived", "outgoingAPIMessageReceived":
		event.FromMe = true
	default:
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, raw.TypeWebhook)
	}

	event.MessageID = strings.TrimSpace(raw.IDMessage)
	event.ChatID = strings.TrimSpace(raw.SenderData.ChatID)
	if event.MessageID == "" {
		return nil, errors.New("webhook event without idMessage")
	}
	if event.ChatID == "" {
		return nil, errors.New("webhook event without chatId")
	}

	if raw.Timestamp > 0 {
		event.SentAt = time.Unix(raw.Timestamp, 0).UTC()
	} else {
		event.SentAt = time.Now().UTC()
	}

	data := raw.MessageData
	switch data.TypeMessage {
	case "textMessage":
		event.MessageType = "text"
		event.Text = data.TextMessageData.TextMessage
	case "extendedTextMessage":
		event.MessageType = "text"
		event.Text = data.ExtendedTextMessageData.Text
	case "imageMessage", "videoMessage", "documentMessage", "audioMessage":
		event.MessageType = strings.TrimSuffix(data.TypeMessage, "Message")
		event.Text = data.FileMessageData.Caption
		event.MediaURL = data.FileMessageData.DownloadURL
		event.MediaMime = data.FileMessageData.MimeType
	case "locationMessage":
		event.MessageType = "location"
		if location := data.LocationMessageData; location != nil {
			latitude, longitude := location.Latitude, location.Longitude
			event.Latitude = &latitude
			event.Longitude = &longitude
			event.Text = strings.TrimSpace(strings.Join(
				[]string{location.NameLocation, location.Address}, " "))
		}
	default:
		event.MessageType = data.TypeMessage
	}

	return event, nil
}

// TaskPayload converts the event into the queue payload for
// process_whatsapp_message tasks.
func (e *Event) TaskPayload() domain.WhatsAppTaskPayload {
	return domain.WhatsAppTaskPayload{
		MessageID:   e.MessageID,
		ChatID:      e.ChatID,
		SenderName:  e.SenderName,
		MessageType: e.MessageType,
		Body:        e.Text,
		MediaURL:    e.MediaURL,
		MediaMime:   e.MediaMime,
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		SentAt:      e.SentAt,
		FromMe:      e.FromMe,
	}
}
