package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType tags the effect of a matched condition.
type ActionType string

const (
	ActionAdvanceStep ActionType = "advance_step"
	ActionAssignQueue ActionType = "assign_queue"
	ActionAssignUser  ActionType = "assign_user"
	ActionCloseTicket ActionType = "close_ticket"
)

// Action is the tagged effect executed when a condition matches. Exactly
// one of the payload fields is meaningful for a given Type.
type Action struct {
	Type         ActionType `json:"type"`
	TargetNodeID string     `json:"targetNodeId,omitempty"`
	QueueID      string     `json:"queueId,omitempty"`
	UserID       string     `json:"userId,omitempty"`
	CloseMessage string     `json:"closeMessage,omitempty"`
}

// ConditionKind selects the matching strategy for a condition.
type ConditionKind string

const (
	ConditionKeyword           ConditionKind = "keyword"
	ConditionSelectionFallback ConditionKind = "selection_fallback"
	ConditionAutomaticFallback ConditionKind = "automatic"
)

// Condition belongs to a node; evaluated in declaration order, first
// match wins. Fallback kinds always match.
type Condition struct {
	Kind     ConditionKind `json:"kind"`
	Triggers []string      `json:"triggers,omitempty"`
	Action   Action        `json:"action"`
}

// AlwaysMatches reports whether the condition matches regardless of input.
func (c Condition) AlwaysMatches() bool {
	return c.Kind == ConditionSelectionFallback || c.Kind == ConditionAutomaticFallback
}

// RetryDestinyKind selects where a ticket goes once a node's retry limit
// is exhausted.
type RetryDestinyKind string

const (
	RetryDestinyClose RetryDestinyKind = "close"
	RetryDestinyQueue RetryDestinyKind = "queue"
	RetryDestinyUser  RetryDestinyKind = "user"
)

// RetryDestiny is the fallback applied when botRetries reaches the node's
// maximum.
type RetryDestiny struct {
	Kind    RetryDestinyKind `json:"kind"`
	QueueID string           `json:"queueId,omitempty"`
	UserID  string           `json:"userId,omitempty"`
}

// Interaction is a templated outbound send executed on node entry.
type Interaction struct {
	Message  string `json:"message"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Node is one step of the flow graph.
type Node struct {
	ID                      string        `json:"id"`
	MaxRetries              int           `json:"maxRetries,omitempty"`
	RetryDestiny            *RetryDestiny `json:"retryDestiny,omitempty"`
	InvalidSelectionMessage string        `json:"invalidSelectionMessage,omitempty"`
	WelcomeMessage          string        `json:"welcomeMessage,omitempty"`
	Conditions              []Condition   `json:"conditions"`
	Interactions            []Interaction `json:"interactions,omitempty"`
}

// FlowDefinition is the immutable-per-version directed graph a flow engine
// walks. It is parsed and validated once at load time; dispatch never sees
// a malformed action.
type FlowDefinition struct {
	StartNodeID string `json:"startNodeId"`
	Nodes       []Node `json:"nodes"`

	byID map[string]*Node
}

// Node returns the node with the given id.
func (d *FlowDefinition) Node(id string) (*Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// Start returns the graph's entry node.
func (d *FlowDefinition) Start() *Node {
	return d.byID[d.StartNodeID]
}

// ParseDefinition decodes and validates a flow definition. Malformed
// definitions are rejected here so the engine can trust every action it
// dispatches.
func ParseDefinition(raw []byte) (*FlowDefinition, error) {
	var def FlowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode flow definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *FlowDefinition) validate() error {
	if len(d.Nodes) == 0 {
		return fmt.Errorf("flow definition has no nodes")
	}
	d.byID = make(map[string]*Node, len(d.Nodes))
	for i := range d.Nodes {
		node := &d.Nodes[i]
		if node.ID == "" {
			return fmt.Errorf("node %d has empty id", i)
		}
		if _, dup := d.byID[node.ID]; dup {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}
		d.byID[node.ID] = node
	}
	if d.StartNodeID == "" {
		return fmt.Errorf("flow definition has no start node")
	}
	if _, ok := d.byID[d.StartNodeID]; !ok {
		return fmt.Errorf("start node %q not present", d.StartNodeID)
	}
	for _, node := range d.Nodes {
		for i, cond := range node.Conditions {
			if err := d.validateCondition(node.ID, i, cond); err != nil {
				return err
			}
		}
		if node.RetryDestiny != nil {
			if err := validateDestiny(node.ID, node.RetryDestiny); err != nil {
				return err
			}
			if node.MaxRetries <= 0 {
				return fmt.Errorf("node %q: retry destiny requires maxRetries > 0", node.ID)
			}
		}
	}
	return nil
}

func (d *FlowDefinition) validateCondition(nodeID string, idx int, cond Condition) error {
	switch cond.Kind {
	case ConditionKeyword:
		if len(cond.Triggers) == 0 {
			return fmt.Errorf("node %q condition %d: keyword condition without triggers", nodeID, idx)
		}
	case ConditionSelectionFallback, ConditionAutomaticFallback:
	default:
		return fmt.Errorf("node %q condition %d: unknown kind %q", nodeID, idx, cond.Kind)
	}
	return d.validateAction(nodeID, idx, cond.Action)
}

func (d *FlowDefinition) validateAction(nodeID string, idx int, action Action) error {
	switch action.Type {
	case ActionAdvanceStep:
		if action.TargetNodeID == "" {
			return fmt.Errorf("node %q condition %d: advance without target node", nodeID, idx)
		}
		if _, ok := d.byID[action.TargetNodeID]; !ok {
			return fmt.Errorf("node %q condition %d: target node %q not present", nodeID, idx, action.TargetNodeID)
		}
	case ActionAssignQueue:
		if action.QueueID == "" {
			return fmt.Errorf("node %q condition %d: assign queue without queue id", nodeID, idx)
		}
	case ActionAssignUser:
		if action.UserID == "" {
			return fmt.Errorf("node %q condition %d: assign user without user id", nodeID, idx)
		}
	case ActionCloseTicket:
	default:
		return fmt.Errorf("node %q condition %d: unknown action type %q", nodeID, idx, action.Type)
	}
	return nil
}

func validateDestiny(nodeID string, destiny *RetryDestiny) error {
	switch destiny.Kind {
	case RetryDestinyClose:
	case RetryDestinyQueue:
		if destiny.QueueID == "" {
			return fmt.Errorf("node %q: queue retry destiny without queue id", nodeID)
		}
	case RetryDestinyUser:
		if destiny.UserID == "" {
			return fmt.Errorf("node %q: user retry destiny without user id", nodeID)
		}
	default:
		return fmt.Errorf("node %q: unknown retry destiny %q", nodeID, destiny.Kind)
	}
	return nil
}

// ChatFlow is a stored, versioned flow bound to channel instances.
type ChatFlow struct {
	ID         string
	TenantID   string
	Name       string
	IsActive   bool
	Definition *FlowDefinition
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
