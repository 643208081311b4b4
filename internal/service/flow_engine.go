package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/domain"
	"github.com/spec-kit/chatflow-service/internal/events"
	"github.com/spec-kit/chatflow-service/internal/repository"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

// FlowEngine drives a ticket through the bot conversation graph: entry on
// new tickets, condition evaluation on inbound replies, retries and
// handoff actions.
type FlowEngine struct {
	tickets repository.TicketRepository
	flows   repository.ChatFlowRepository
	queues  repository.QueueRepository
	users   repository.UserRepository
	logs    repository.TicketLogRepository

	store      *MessageStore
	hours      *BusinessHoursGate
	assignment AssignmentPolicy
	dispatcher events.Dispatcher
	logger     *zap.Logger

	invalidOptionMessage string
	retryCloseMessage    string
}

// FlowEngineDependencies bundles collaborators.
type FlowEngineDependencies struct {
	TicketRepo   repository.TicketRepository
	ChatFlowRepo repository.ChatFlowRepository
	QueueRepo    repository.QueueRepository
	UserRepo     repository.UserRepository
	LogRepo      repository.TicketLogRepository
	Store        *MessageStore
	Hours        *BusinessHoursGate
	Assignment   AssignmentPolicy
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewFlowEngine creates the engine.
func NewFlowEngine(cfg config.FlowConfig, deps FlowEngineDependencies) *FlowEngine {
	return &FlowEngine{
		tickets:              deps.TicketRepo,
		flows:                deps.ChatFlowRepo,
		queues:               deps.QueueRepo,
		users:                deps.UserRepo,
		logs:                 deps.LogRepo,
		store:                deps.Store,
		hours:                deps.Hours,
		assignment:           deps.Assignment,
		dispatcher:           deps.Dispatcher,
		logger:               deps.Logger,
		invalidOptionMessage: cfg.InvalidOptionMessage,
		retryCloseMessage:    cfg.RetryCloseMessage,
	}
}

// InboundReply is the conversational content the engine evaluates. For
// selection-list and button replies SelectionID carries the chosen row or
// callback identifier and takes precedence over free text.
type InboundReply struct {
	Text        string
	SelectionID string
}

func (r InboundReply) normalized() string {
	if r.SelectionID != "" {
		return strings.ToLower(strings.TrimSpace(r.SelectionID))
	}
	return strings.ToLower(strings.TrimSpace(r.Text))
}

// Start enters a brand-new ticket into the flow bound to its channel
// instance. Tickets that are grouped, already assigned, or outside the
// flow test number are left untouched.
func (e *FlowEngine) Start(ctx context.Context, ticket *domain.Ticket, ci *domain.ChannelInstance, contact *domain.Contact) error {
	if ticket.IsGroup || ticket.UserID != nil || !ticket.IsResolvable() {
		return nil
	}
	if !ci.FlowAppliesTo(contact.Number) {
		return nil
	}

	flow, err := e.loadFlow(ctx, *ci.ChatFlowID)
	if err != nil {
		return err
	}
	if !flow.IsActive {
		return nil
	}

	start := flow.Definition.Start()
	now := time.Now()
	stepID := start.ID
	ticket.ChatFlowID = &flow.ID
	ticket.StepChatFlow = &stepID
	ticket.ChatFlowStatus = domain.FlowStatusWaitingAnswer
	ticket.BotRetries = 0
	ticket.LastInteractionBot = &now
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	e.writeLog(ctx, ticket, domain.LogChatBot, nil, nil)
	e.publishTicket(ctx, ticket)

	return e.runInteractions(ctx, ticket, contact, start)
}

// HandleInbound evaluates the current step against an inbound reply and
// dispatches the matching action.
func (e *FlowEngine) HandleInbound(ctx context.Context, ticket *domain.Ticket, contact *domain.Contact, reply InboundReply) error {
	if !ticket.InFlow() {
		return nil
	}

	flow, err := e.loadFlow(ctx, *ticket.ChatFlowID)
	if err != nil {
		return err
	}
	if ticket.StepChatFlow == nil {
		return apperrors.NewInvalidFlowStep(flow.ID, "")
	}
	node, ok := flow.Definition.Node(*ticket.StepChatFlow)
	if !ok {
		return apperrors.NewInvalidFlowStep(flow.ID, *ticket.StepChatFlow)
	}

	// Exhausted retries bypass condition matching entirely.
	if node.RetryDestiny != nil && node.MaxRetries > 0 && ticket.BotRetries+1 >= node.MaxRetries {
		return e.escalate(ctx, ticket, contact, node)
	}

	normalized := reply.normalized()
	for _, cond := range node.Conditions {
		if conditionMatches(cond, normalized) {
			return e.dispatch(ctx, ticket, contact, flow, cond.Action)
		}
	}

	return e.handleNoMatch(ctx, ticket, contact, node)
}

// conditionMatches applies keyword prefix matching on the normalized
// reply; fallback kinds always match.
func conditionMatches(cond domain.Condition, normalized string) bool {
	if cond.AlwaysMatches() {
		return true
	}
	for _, trigger := range cond.Triggers {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger != "" && strings.HasPrefix(normalized, trigger) {
			return true
		}
	}
	return false
}

func (e *FlowEngine) dispatch(ctx context.Context, ticket *domain.Ticket, contact *domain.Contact, flow *domain.ChatFlow, action domain.Action) error {
	switch action.Type {
	case domain.ActionAdvanceStep:
		return e.advanceStep(ctx, ticket, contact, flow, action.TargetNodeID)
	case domain.ActionAssignQueue:
		return e.assignQueue(ctx, ticket, action.QueueID, domain.LogQueue, false)
	case domain.ActionAssignUser:
		return e.assignUser(ctx, ticket, action.UserID, domain.LogUserDefine, false)
	case domain.ActionCloseTicket:
		return e.closeTicket(ctx, ticket, action.CloseMessage)
	default:
		// Unreachable: definitions are validated at load time.
		return apperrors.NewInvalidFlowStep(flow.ID, string(action.Type))
	}
}

func (e *FlowEngine) advanceStep(ctx context.Context, ticket *domain.Ticket, contact *domain.Contact, flow *domain.ChatFlow, targetID string) error {
	target, ok := flow.Definition.Node(targetID)
	if !ok {
		return apperrors.NewInvalidFlowStep(flow.ID, targetID)
	}

	now := time.Now()
	stepID := target.ID
	ticket.StepChatFlow = &stepID
	ticket.BotRetries = 0
	ticket.LastInteractionBot = &now
	ticket.ChatFlowStatus = domain.FlowStatusInProgress
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	e.publishTicket(ctx, ticket)

	return e.runInteractions(ctx, ticket, contact, target)
}

func (e *FlowEngine) assignQueue(ctx context.Context, ticket *domain.Ticket, queueID string, logKind domain.TicketLogKind, withWelcome bool) error {
	within, err := e.hours.Check(ctx, ticket)
	if err != nil {
		return err
	}
	if !within {
		// Absence notice already sent by the gate; no handoff.
		return nil
	}

	queue, err := e.queues.GetByID(ctx, queueID)
	if err != nil {
		return err
	}

	ticket.DetachFlow()
	ticket.QueueID = &queue.ID
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	e.writeLog(ctx, ticket, logKind, &queue.ID, nil)
	e.publishTicket(ctx, ticket)

	if withWelcome && queue.WelcomeMessage != "" {
		if _, err := e.store.SendBot(ctx, ticket, queue.WelcomeMessage); err != nil {
			return err
		}
	}
	if e.assignment != nil {
		if err := e.assignment.AutoAssign(ctx, ticket); err != nil {
			e.logger.Warn("auto assignment failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *FlowEngine) assignUser(ctx context.Context, ticket *domain.Ticket, userID string, logKind domain.TicketLogKind, withWelcome bool) error {
	within, err := e.hours.Check(ctx, ticket)
	if err != nil {
		return err
	}
	if !within {
		return nil
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ticket.DetachFlow()
	ticket.UserID = &user.ID
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	e.writeLog(ctx, ticket, logKind, nil, &user.ID)
	e.publishTicket(ctx, ticket)

	if withWelcome && user.WelcomeMessage != "" {
		if _, err := e.store.SendBot(ctx, ticket, user.WelcomeMessage); err != nil {
			return err
		}
	}
	return nil
}

func (e *FlowEngine) closeTicket(ctx context.Context, ticket *domain.Ticket, message string) error {
	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	ticket.BotRetries = 0
	ticket.LastAbsenceMessageAt = nil
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	e.publishTicket(ctx, ticket)

	if message != "" {
		if _, err := e.store.SendBot(ctx, ticket, message); err != nil {
			return err
		}
	}
	return nil
}

// handleNoMatch increments the retry counter and re-prompts with the
// node's invalid-selection message.
func (e *FlowEngine) handleNoMatch(ctx context.Context, ticket *domain.Ticket, contact *domain.Contact, node *domain.Node) error {
	now := time.Now()
	ticket.BotRetries++
	ticket.LastInteractionBot = &now
	if err := e.tickets.Update(ctx, ticket); err != nil {
		return err
	}

	prompt := node.InvalidSelectionMessage
	if prompt == "" {
		prompt = e.invalidOptionMessage
	}
	_, err := e.store.SendBot(ctx, ticket, renderTemplate(prompt, ticket, contact))
	return err
}

// escalate applies the node's retry destiny once the limit is reached.
func (e *FlowEngine) escalate(ctx context.Context, ticket *domain.Ticket, contact *domain.Contact, node *domain.Node) error {
	destiny := node.RetryDestiny
	switch destiny.Kind {
	case domain.RetryDestinyClose:
		e.writeLog(ctx, ticket, domain.LogRetriesLimitClose, nil, nil)
		return e.closeTicket(ctx, ticket, renderTemplate(e.retryCloseMessage, ticket, contact))
	case domain.RetryDestinyQueue:
		return e.assignQueue(ctx, ticket, destiny.QueueID, domain.LogRetriesLimitQueue, true)
	case domain.RetryDestinyUser:
		return e.assignUser(ctx, ticket, destiny.UserID, domain.LogRetriesLimitUser, true)
	default:
		return nil
	}
}

func (e *FlowEngine) runInteractions(ctx context.Context, ticket *domain.Ticket, contact *domain.Contact, node *domain.Node) error {
	for _, interaction := range node.Interactions {
		body := renderTemplate(interaction.Message, ticket, contact)
		var err error
		if interaction.MediaURL != "" {
			_, err = e.store.SendBotMedia(ctx, ticket, body, interaction.MediaURL)
		} else {
			_, err = e.store.SendBot(ctx, ticket, body)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *FlowEngine) loadFlow(ctx context.Context, flowID string) (*domain.ChatFlow, error) {
	flow, err := e.flows.GetByID(ctx, flowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewFlowNotFound(flowID)
		}
		return nil, err
	}
	return flow, nil
}

func (e *FlowEngine) writeLog(ctx context.Context, ticket *domain.Ticket, kind domain.TicketLogKind, queueID, userID *string) {
	entry := &domain.TicketLog{
		TicketID: ticket.ID,
		TenantID: ticket.TenantID,
		Kind:     kind,
		QueueID:  queueID,
		UserID:   userID,
	}
	if err := e.logs.Create(ctx, entry); err != nil {
		e.logger.Warn("write ticket log",
			zap.String("ticket_id", ticket.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (e *FlowEngine) publishTicket(ctx context.Context, ticket *domain.Ticket) {
	if e.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		TenantID:  ticket.TenantID,
		Type:      events.EventTicketUpdated,
		Timestamp: time.Now(),
		Payload:   events.TicketUpdatedPayload{Ticket: ticket},
	}
	_ = e.dispatcher.Publish(ctx, event)
}

// renderTemplate substitutes the placeholders flow authors can use in
// interaction and prompt texts.
func renderTemplate(text string, ticket *domain.Ticket, contact *domain.Contact) string {
	name := ""
	if contact != nil {
		name = contact.Name
	}
	replacer := strings.NewReplacer(
		"{{name}}", name,
		"{{protocol}}", ticket.ID,
	)
	return replacer.Replace(text)
}
