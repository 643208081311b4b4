package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/crypto"
	"github.com/spec-kit/chatflow-service/internal/domain"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

type storeFixture struct {
	store    *MessageStore
	tickets  *memTicketRepo
	messages *memMessageRepo
	cipher   *crypto.BodyCipher
	adapter  *fakeAdapter
	media    *fakeMedia
	ticket   *domain.Ticket
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	cipher, err := crypto.NewBodyCipher("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	tickets := newMemTicketRepo()
	messages := newMemMessageRepo()
	adapter := &fakeAdapter{}
	media := &fakeMedia{}

	ticket := &domain.Ticket{
		TenantID:          "tenant-1",
		ContactID:         "contact-1",
		ChannelInstanceID: "ci-1",
		Status:            domain.TicketStatusPending,
	}
	if err := tickets.Create(context.Background(), ticket); err != nil {
		t.Fatal(err)
	}

	store := NewMessageStore(config.AppConfig{MediaBaseURL: "https://media.example.com/"}, MessageStoreDependencies{
		MessageRepo: messages,
		TicketRepo:  tickets,
		Cipher:      cipher,
		Media:       media,
		Adapter:     adapter,
		Logger:      zap.NewNop(),
	})
	return &storeFixture{
		store:    store,
		tickets:  tickets,
		messages: messages,
		cipher:   cipher,
		adapter:  adapter,
		media:    media,
		ticket:   ticket,
	}
}

func strptr(s string) *string { return &s }

func (f *storeFixture) inboundInput(externalID, body string) RecordInput {
	return RecordInput{
		TenantID:   "tenant-1",
		TicketID:   f.ticket.ID,
		ContactID:  strptr("contact-1"),
		ExternalID: strptr(externalID),
		Body:       body,
		Status:     "received",
		Timestamp:  time.Now(),
	}
}

func TestRecordEncryptsBodyAtRest(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Record(context.Background(), f.inboundInput("ext-1", "hello there"))
	if err != nil {
		t.Fatal(err)
	}
	stored, err := f.messages.GetByID(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored.Body, "enc.v1.") {
		t.Fatalf("stored body not sealed: %q", stored.Body)
	}
	if got := f.cipher.Decrypt(stored.Body); got != "hello there" {
		t.Fatalf("decrypt = %q, want %q", got, "hello there")
	}
}

func TestRecordDeduplicatesByExternalID(t *testing.T) {
	f := newStoreFixture(t)

	first, err := f.store.Record(context.Background(), f.inboundInput("ext-1", "hello"))
	if err != nil {
		t.Fatal(err)
	}

	redelivery := f.inboundInput("ext-1", "hello")
	redelivery.Ack = domain.AckDelivered
	redelivery.Status = "delivered"
	redelivery.Read = true

	second, err := f.store.Record(context.Background(), redelivery)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("redelivery produced row %q, want %q", second.ID, first.ID)
	}
	if f.messages.count() != 1 {
		t.Fatalf("message count = %d, want 1", f.messages.count())
	}

	stored, _ := f.messages.GetByID(context.Background(), first.ID)
	if stored.Ack != domain.AckDelivered {
		t.Fatalf("ack = %d, want %d", stored.Ack, domain.AckDelivered)
	}
	if stored.Status != "delivered" {
		t.Fatalf("status = %q, want delivered", stored.Status)
	}
	if !stored.Read {
		t.Fatal("read flag not applied")
	}
}

func TestRecordRedeliveryKeepsCiphertextWhenBodyUnchanged(t *testing.T) {
	f := newStoreFixture(t)

	first, err := f.store.Record(context.Background(), f.inboundInput("ext-1", "hello"))
	if err != nil {
		t.Fatal(err)
	}
	before, _ := f.messages.GetByID(context.Background(), first.ID)

	if _, err := f.store.Record(context.Background(), f.inboundInput("ext-1", "hello")); err != nil {
		t.Fatal(err)
	}
	after, _ := f.messages.GetByID(context.Background(), first.ID)
	if after.Body != before.Body {
		t.Fatal("unchanged body was re-encrypted")
	}
}

func TestRecordEmptyBodyGetsPlaceholder(t *testing.T) {
	f := newStoreFixture(t)

	input := f.inboundInput("ext-1", "   ")
	input.MediaType = strptr("image")
	input.MediaURL = strptr("https://channel.example.com/blob/1")

	msg, err := f.store.Record(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.cipher.Decrypt(msg.Body); got != emptyBodyPlaceholder {
		t.Fatalf("body = %q, want placeholder", got)
	}
}

func TestRecordUpdatesTicketSummary(t *testing.T) {
	f := newStoreFixture(t)

	if _, err := f.store.Record(context.Background(), f.inboundInput("ext-1", "primeira mensagem")); err != nil {
		t.Fatal(err)
	}
	ticket := f.tickets.mustGet(f.ticket.ID)
	if ticket.LastMessage != "primeira mensagem" {
		t.Fatalf("lastMessage = %q", ticket.LastMessage)
	}
	if ticket.LastMessageAt == nil {
		t.Fatal("lastMessageAt not set")
	}
	if ticket.Answered {
		t.Fatal("inbound message must mark ticket unanswered")
	}
	if ticket.UnreadMessages != 1 {
		t.Fatalf("unread = %d, want 1", ticket.UnreadMessages)
	}

	// An agent-side message flips the summary.
	out := RecordInput{
		TenantID:  "tenant-1",
		TicketID:  f.ticket.ID,
		Body:      "resposta",
		FromMe:    true,
		Timestamp: time.Now(),
	}
	if _, err := f.store.Record(context.Background(), out); err != nil {
		t.Fatal(err)
	}
	ticket = f.tickets.mustGet(f.ticket.ID)
	if !ticket.Answered {
		t.Fatal("outbound message must mark ticket answered")
	}
	if ticket.UnreadMessages != 0 {
		t.Fatalf("unread = %d, want 0 after outbound", ticket.UnreadMessages)
	}
}

func TestRecordTruncatesLongPreview(t *testing.T) {
	f := newStoreFixture(t)

	long := strings.Repeat("ã", 400)
	if _, err := f.store.Record(context.Background(), f.inboundInput("ext-1", long)); err != nil {
		t.Fatal(err)
	}
	ticket := f.tickets.mustGet(f.ticket.ID)
	runes := []rune(ticket.LastMessage)
	if len(runes) != lastMessageLimit {
		t.Fatalf("preview rune length = %d, want %d", len(runes), lastMessageLimit)
	}
	if runes[len(runes)-1] != '…' {
		t.Fatalf("preview does not end with ellipsis: %q", string(runes[len(runes)-5:]))
	}
}

func TestRecordMediaFailureIsNonFatal(t *testing.T) {
	f := newStoreFixture(t)
	f.media.fail = true

	input := f.inboundInput("ext-1", "com anexo")
	input.MediaType = strptr("image")
	input.MediaURL = strptr("https://channel.example.com/blob/1")

	msg, err := f.store.Record(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if msg.MediaURL != nil || msg.MediaType != nil {
		t.Fatalf("failed ingest must clear media refs, got type=%v url=%v", msg.MediaType, msg.MediaURL)
	}
}

func TestRecordMediaStoredKey(t *testing.T) {
	f := newStoreFixture(t)

	input := f.inboundInput("ext-1", "com anexo")
	input.MediaType = strptr("image")
	input.MediaURL = strptr("https://channel.example.com/blob/1")

	msg, err := f.store.Record(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if msg.MediaURL == nil || !strings.HasPrefix(*msg.MediaURL, "stored/") {
		t.Fatalf("media key = %v", msg.MediaURL)
	}
}

func TestRecordUnknownTicket(t *testing.T) {
	f := newStoreFixture(t)

	input := f.inboundInput("ext-1", "hello")
	input.TicketID = "missing"
	_, err := f.store.Record(context.Background(), input)
	if !apperrors.IsTicketNotFound(err) {
		t.Fatalf("expected ticket not found, got %v", err)
	}
}

func TestSendBotRecordsEvenWhenDeliveryFails(t *testing.T) {
	f := newStoreFixture(t)
	f.adapter.failAl = true

	msg, err := f.store.SendBot(context.Background(), f.ticket, "oi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ExternalID != nil {
		t.Fatal("failed delivery must not attach an external id")
	}
	if msg.SendType != domain.SendTypeBot {
		t.Fatalf("sendType = %q, want bot", msg.SendType)
	}
	if f.messages.count() != 1 {
		t.Fatalf("message count = %d, want 1", f.messages.count())
	}
}

func TestSendBotCarriesExternalIDAndAck(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.SendBot(context.Background(), f.ticket, "oi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ExternalID == nil || *msg.ExternalID == "" {
		t.Fatal("delivered message must carry external id")
	}
	if msg.Ack != domain.AckSent {
		t.Fatalf("ack = %d, want %d", msg.Ack, domain.AckSent)
	}
	if len(f.adapter.sent) != 1 || f.adapter.sent[0] != "oi" {
		t.Fatalf("adapter sends = %v", f.adapter.sent)
	}
}

func TestAbsoluteMediaURL(t *testing.T) {
	f := newStoreFixture(t)

	cases := []struct {
		key  string
		want string
	}{
		{"stored/tenant-1/file.bin", "https://media.example.com/stored/tenant-1/file.bin"},
		{"/stored/x", "https://media.example.com/stored/x"},
		{"https://cdn.example.com/a", "https://cdn.example.com/a"},
	}
	for _, tc := range cases {
		if got := f.store.absoluteMediaURL(&tc.key); got != tc.want {
			t.Errorf("absoluteMediaURL(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
