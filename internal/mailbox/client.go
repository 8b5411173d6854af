package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

var ErrMailboxUnavailable = errors.New("mailbox client unavailable")

type MessageSummary struct {
	ID         string
	Sender     string
	SenderName string
	Subject    string
	Preview    string
	ReceivedAt time.Time
}

type MessageDetail struct {
	ID          string
	Sender      string
	SenderName  string
	Subject     string
	Body        string
	ContentType string
	ReceivedAt  time.Time
	Attachments []domain.EmailAttachment
}

// Client reads the shared inbox. The Graph implementation below is the
// production one; the poller only depends on this interface.
type Client interface {
	ListMessagesSince(ctx context.Context, since time.Time) ([]MessageSummary, error)
	GetMessage(ctx context.Context, id string) (*MessageDetail, error)
	Available() bool
}

var skippedSenderPrefixes = []string{
	"no-reply@", "noreply@", "do-not-reply@", "donotreply@",
	"mailer-daemon@", "postmaster@", "bounce@", "bounces@",
	"support@", "info@", "newsletter@", "news@", "updates@",
	"notifications@", "marketing@",
}

var skippedSubjectFragments = []string{
	"undeliverable:", "delivery status notification", "delivery has failed",
	"out of office", "automatic reply", "auto-reply", "autoreply",
	"newsletter", "unsubscribe", "promotion", "webinar", "special offer",
}

// SkipReason reports why a message should be dropped before intent
// classification, or "" when it should go through. The lists are
// negative filters only: anything not matched still gets classified.
func SkipReason(sender, subject string) string {
	loweredSender := strings.ToLower(strings.TrimSpace(sender))
	for _, prefix := range skippedSenderPrefixes {
		if strings.HasPrefix(loweredSender, prefix) {
			return "sender matches " + prefix
		}
	}

	loweredSubject := strings.ToLower(subject)
	for _, fragment := range skippedSubjectFragments {
		if strings.Contains(loweredSubject, fragment) {
			return fmt.Sprintf("subject matches %q", fragment)
		}
	}
	return ""
}
