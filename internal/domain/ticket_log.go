package domain

import "time"

// TicketLogKind categorizes audit entries written by the flow engine.
type TicketLogKind string

const (
	LogChatBot           TicketLogKind = "chatBot"
	LogQueue             TicketLogKind = "queue"
	LogUserDefine        TicketLogKind = "userDefine"
	LogRetriesLimitClose TicketLogKind = "retriesLimitClose"
	LogRetriesLimitQueue TicketLogKind = "retriesLimitQueue"
	LogRetriesLimitUser  TicketLogKind = "retriesLimitUserDefine"
)

// TicketLog records a bot or handoff event in a ticket's history.
type TicketLog struct {
	ID        string
	TicketID  string
	TenantID  string
	Kind      TicketLogKind
	QueueID   *string
	UserID    *string
	CreatedAt time.Time
}
