package connectors

import (
	"fmt"
	"strings"
	"time"

	"taxelev/internal"
)

// MailConnector pulls raw survey mails from a mailbox.
type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.InboundMessage, error)
}

// NewInbound fills the fields every connector derives the same way: a
// missing message id falls back to the provider-local id, a zero time to now.
func NewInbound(provider, messageID, localID, subject, from string, received time.Time, raw []byte) internal.InboundMessage {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		messageID = fmt.Sprintf("%s-%s", provider, localID)
	}
	if received.IsZero() {
		received = time.Now()
	}
	return internal.InboundMessage{
		Provider:   provider,
		MessageID:  messageID,
		Subject:    strings.TrimSpace(subject),
		From:       strings.TrimSpace(from),
		ReceivedAt: received.UTC().Format(time.RFC3339),
		Raw:        raw,
	}
}
