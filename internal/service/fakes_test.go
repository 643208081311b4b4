package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// In-memory repository fakes. They mimic the datastore's per-row
// atomicity and the unique indexes the migrations declare.

type memTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tickets {
		if existing.TenantID == ticket.TenantID &&
			existing.ChannelInstanceID == ticket.ChannelInstanceID &&
			existing.ContactID == ticket.ContactID &&
			existing.IsResolvable() {
			return errors.New("duplicate open ticket for contact")
		}
	}
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) FindOpenByContact(ctx context.Context, tenantID, channelInstanceID, contactID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.TenantID == tenantID &&
			ticket.ChannelInstanceID == channelInstanceID &&
			ticket.ContactID == contactID &&
			ticket.IsResolvable() {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memTicketRepo) mustGet(id string) *domain.Ticket {
	ticket, err := r.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return ticket
}

type memMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages map[string]*domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: make(map[string]*domain.Message)}
}

func (r *memMessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ExternalID != nil {
		for _, existing := range r.messages {
			if existing.TenantID == msg.TenantID && existing.ExternalID != nil && *existing.ExternalID == *msg.ExternalID {
				return errors.New("duplicate external id")
			}
		}
	}
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	clone := *msg
	r.messages[msg.ID] = &clone
	return nil
}

func (r *memMessageRepo) Update(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; !ok {
		return pgx.ErrNoRows
	}
	msg.UpdatedAt = time.Now()
	clone := *msg
	r.messages[msg.ID] = &clone
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *msg
	return &clone, nil
}

func (r *memMessageRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.TenantID == tenantID && msg.ExternalID != nil && *msg.ExternalID == externalID {
			clone := *msg
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memMessageRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, *msg)
		}
	}
	return result, nil
}

func (r *memMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *memMessageRepo) all() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.messages {
		result = append(result, *msg)
	}
	// Map iteration order is random; return messages in insertion order.
	sort.Slice(result, func(i, j int) bool {
		return msgSeq(result[i].ID) < msgSeq(result[j].ID)
	})
	return result
}

func msgSeq(id string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(id, "msg-"))
	return n
}

type memFlowRepo struct {
	flows map[string]*domain.ChatFlow
}

func (r *memFlowRepo) GetByID(ctx context.Context, id string) (*domain.ChatFlow, error) {
	flow, ok := r.flows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return flow, nil
}

type memChannelInstanceRepo struct {
	instances map[string]*domain.ChannelInstance
}

func (r *memChannelInstanceRepo) GetByID(ctx context.Context, id string) (*domain.ChannelInstance, error) {
	ci, ok := r.instances[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ci, nil
}

type memQueueRepo struct {
	queues map[string]*domain.Queue
}

func (r *memQueueRepo) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	queue, ok := r.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return queue, nil
}

type memUserRepo struct {
	users map[string]*domain.User
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

type memHoursRepo struct {
	byWeekday map[time.Weekday]*domain.BusinessHours
}

func (r *memHoursRepo) GetByWeekday(ctx context.Context, tenantID string, weekday time.Weekday) (*domain.BusinessHours, error) {
	if r == nil || r.byWeekday == nil {
		return nil, nil
	}
	return r.byWeekday[weekday], nil
}

type memLogRepo struct {
	mu      sync.Mutex
	entries []domain.TicketLog
}

func (r *memLogRepo) Create(ctx context.Context, log *domain.TicketLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = fmt.Sprintf("log-%d", len(r.entries)+1)
	log.CreatedAt = time.Now()
	r.entries = append(r.entries, *log)
	return nil
}

func (r *memLogRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketLog
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *memLogRepo) kinds() []domain.TicketLogKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketLogKind
	for _, entry := range r.entries {
		result = append(result, entry.Kind)
	}
	return result
}

// memLocker implements the conditional-set-with-expiry semantics of the
// redis marker, minus actual expiry.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = token
	return true, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fakeAdapter struct {
	mu     sync.Mutex
	seq    int
	sent   []string
	failAl bool
}

func (a *fakeAdapter) SendText(ctx context.Context, ticket *domain.Ticket, body string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAl {
		return "", errors.New("adapter unavailable")
	}
	a.seq++
	a.sent = append(a.sent, body)
	return fmt.Sprintf("ext-out-%d", a.seq), nil
}

type fakeMedia struct {
	fail bool
}

func (m *fakeMedia) Ingest(ctx context.Context, tenantID, sourceURL, mediaType string) (string, error) {
	if m.fail {
		return "", errors.New("download failed")
	}
	return "stored/" + tenantID + "/file.bin", nil
}

type fakeResolver struct {
	contact *domain.Contact
}

func (f *fakeResolver) Resolve(ctx context.Context, tenantID string, input ContactInput) (*domain.Contact, error) {
	if f.contact != nil {
		return f.contact, nil
	}
	return &domain.Contact{
		ID:       "contact-" + input.Number,
		TenantID: tenantID,
		Name:     input.Name,
		Number:   input.Number,
		IsGroup:  input.IsGroup,
	}, nil
}
