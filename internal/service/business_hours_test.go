package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/crypto"
	"github.com/spec-kit/chatflow-service/internal/domain"
)

type hoursFixture struct {
	gate     *BusinessHoursGate
	tickets  *memTicketRepo
	messages *memMessageRepo
	cipher   *crypto.BodyCipher
	adapter  *fakeAdapter
	ticket   *domain.Ticket
}

func newHoursFixture(t *testing.T, byWeekday map[time.Weekday]*domain.BusinessHours) *hoursFixture {
	t.Helper()
	cipher, err := crypto.NewBodyCipher("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	tickets := newMemTicketRepo()
	messages := newMemMessageRepo()
	adapter := &fakeAdapter{}

	store := NewMessageStore(config.AppConfig{}, MessageStoreDependencies{
		MessageRepo: messages,
		TicketRepo:  tickets,
		Cipher:      cipher,
		Adapter:     adapter,
		Logger:      zap.NewNop(),
	})
	gate := NewBusinessHoursGate(config.FlowConfig{
		AbsenceMessage:     "Estamos fora do horário de atendimento.",
		AbsenceCooldownMin: 30,
	}, BusinessHoursGateDependencies{
		HoursRepo:  &memHoursRepo{byWeekday: byWeekday},
		TicketRepo: tickets,
		Store:      store,
		Logger:     zap.NewNop(),
	})

	ticket := &domain.Ticket{
		TenantID:          "tenant-1",
		ContactID:         "contact-1",
		ChannelInstanceID: "ci-1",
		Status:            domain.TicketStatusPending,
	}
	if err := tickets.Create(context.Background(), ticket); err != nil {
		t.Fatal(err)
	}
	return &hoursFixture{
		gate:     gate,
		tickets:  tickets,
		messages: messages,
		cipher:   cipher,
		adapter:  adapter,
		ticket:   ticket,
	}
}

func allWeekdays(cfg domain.BusinessHours) map[time.Weekday]*domain.BusinessHours {
	out := make(map[time.Weekday]*domain.BusinessHours)
	for d := time.Sunday; d <= time.Saturday; d++ {
		c := cfg
		c.Weekday = d
		out[d] = &c
	}
	return out
}

func TestCheckNoConfigurationFailsOpen(t *testing.T) {
	f := newHoursFixture(t, nil)

	within, err := f.gate.Check(context.Background(), f.ticket)
	if err != nil {
		t.Fatal(err)
	}
	if !within {
		t.Fatal("unconfigured weekday must fail open")
	}
	if f.messages.count() != 0 {
		t.Fatal("no absence notice expected")
	}
}

func TestCheckWindowedWithinHours(t *testing.T) {
	f := newHoursFixture(t, allWeekdays(domain.BusinessHours{
		TenantID:   "tenant-1",
		Mode:       domain.BusinessHoursWindowed,
		FirstStart: "00:00",
		FirstEnd:   "23:59",
	}))

	within, err := f.gate.Check(context.Background(), f.ticket)
	if err != nil {
		t.Fatal(err)
	}
	if !within {
		t.Fatal("expected within hours")
	}
}

func TestCheckClosedSendsAbsenceNoticeOnce(t *testing.T) {
	f := newHoursFixture(t, allWeekdays(domain.BusinessHours{
		TenantID: "tenant-1",
		Mode:     domain.BusinessHoursClosed,
		Message:  "Voltamos amanhã.",
	}))

	within, err := f.gate.Check(context.Background(), f.ticket)
	if err != nil {
		t.Fatal(err)
	}
	if within {
		t.Fatal("closed day must report outside hours")
	}
	if f.messages.count() != 1 {
		t.Fatalf("absence notices = %d, want 1", f.messages.count())
	}
	if got := f.cipher.Decrypt(f.messages.all()[0].Body); got != "Voltamos amanhã." {
		t.Fatalf("notice body = %q", got)
	}
	if f.ticket.LastAbsenceMessageAt == nil {
		t.Fatal("cooldown stamp not applied to caller's ticket")
	}

	// Second message within the cooldown window: still outside hours but
	// no additional notice.
	within, err = f.gate.Check(context.Background(), f.ticket)
	if err != nil {
		t.Fatal(err)
	}
	if within {
		t.Fatal("still outside hours")
	}
	if f.messages.count() != 1 {
		t.Fatalf("absence notices = %d, want 1 after cooldown suppression", f.messages.count())
	}
}

func TestCheckAbsenceNoticeResendsAfterCooldown(t *testing.T) {
	f := newHoursFixture(t, allWeekdays(domain.BusinessHours{
		TenantID: "tenant-1",
		Mode:     domain.BusinessHoursClosed,
	}))

	if _, err := f.gate.Check(context.Background(), f.ticket); err != nil {
		t.Fatal(err)
	}
	if f.messages.count() != 1 {
		t.Fatalf("absence notices = %d, want 1", f.messages.count())
	}

	// Advance the clock beyond the cooldown.
	f.gate.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	if _, err := f.gate.Check(context.Background(), f.ticket); err != nil {
		t.Fatal(err)
	}
	if f.messages.count() != 2 {
		t.Fatalf("absence notices = %d, want 2 after cooldown expiry", f.messages.count())
	}
}

func TestCheckSkipsClosedTicketsAndGroups(t *testing.T) {
	f := newHoursFixture(t, allWeekdays(domain.BusinessHours{
		TenantID: "tenant-1",
		Mode:     domain.BusinessHoursClosed,
	}))

	closed := *f.ticket
	closed.Status = domain.TicketStatusClosed
	within, err := f.gate.Check(context.Background(), &closed)
	if err != nil || !within {
		t.Fatalf("closed ticket: within=%v err=%v, want true nil", within, err)
	}

	group := *f.ticket
	group.IsGroup = true
	within, err = f.gate.Check(context.Background(), &group)
	if err != nil || !within {
		t.Fatalf("group ticket: within=%v err=%v, want true nil", within, err)
	}
	if f.messages.count() != 0 {
		t.Fatal("no absence notice expected for skipped tickets")
	}
}

func TestCheckInvalidWindowFailsOpen(t *testing.T) {
	f := newHoursFixture(t, allWeekdays(domain.BusinessHours{
		TenantID:   "tenant-1",
		Mode:       domain.BusinessHoursWindowed,
		FirstStart: "not-a-clock",
		FirstEnd:   "18:00",
	}))

	within, err := f.gate.Check(context.Background(), f.ticket)
	if err != nil {
		t.Fatal(err)
	}
	if !within {
		t.Fatal("invalid configuration must fail open")
	}
}
