package domain

import "time"

// SendType differentiates agent/contact chat from bot-authored sends.
type SendType string

const (
	SendTypeChat SendType = "chat"
	SendTypeBot  SendType = "bot"
)

// Message ack levels as reported by channel adapters.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// Message is a normalized conversational event. Body is ciphertext at
// rest. ExternalID, when present, is the channel-native id and the sole
// deduplication key within a tenant.
type Message struct {
	ID          string
	ExternalID  *string
	TicketID    string
	ContactID   *string
	Body        string
	MediaType   *string
	MediaURL    *string
	Ack         int
	Status      string
	FromMe      bool
	Read        bool
	SendType    SendType
	QuotedMsgID *string
	Timestamp   time.Time
	TenantID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
