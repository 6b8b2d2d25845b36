package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"CaseChat/internal/session"
	"CaseChat/internal/store"
)

// State of a case instance in the lifecycle controller.
type State string

const (
	StateIdle              State = "idle"
	StateOpen              State = "open"
	StateAwaitingDiagnosis State = "awaiting_diagnosis"
	StateClosed            State = "closed"
)

var (
	// ErrConversationActive reports an open while a conversation exists.
	ErrConversationActive = errors.New("a conversation is already open")
	// ErrNoConversation reports an action that needs a different state.
	ErrNoConversation = errors.New("no open conversation")
)

// Identity supplies the learner's current name, read at commit time.
type Identity interface {
	CurrentUserName() string
}

// SessionSaver is the slice of the session store the controller needs.
type SessionSaver interface {
	Save(u store.Upsert) (session.Session, bool, error)
}

// Controller runs the lifecycle of one case instance at a time:
// IDLE -> OPEN -> AWAITING_DIAGNOSIS -> CLOSED. Only the explicit
// finish-and-submit path persists anything; an abort discards the
// conversation without a trace.
type Controller struct {
	engine   *Engine
	sessions SessionSaver
	identity Identity
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	conv      *Conversation
	caseID    string
	sessionID string
}

// NewController creates a controller in the IDLE state.
func NewController(engine *Engine, sessions SessionSaver, identity Identity, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		engine:   engine,
		sessions: sessions,
		identity: identity,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conversation returns the live conversation, or nil outside OPEN and
// AWAITING_DIAGNOSIS.
func (c *Controller) Conversation() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Open starts a new case instance and runs the kickoff exchange,
// returning the assistant's greeting. The instance moves to OPEN even if
// the kickoff fails (the error is returned so the caller can report it);
// a CLOSED controller may be reopened, which starts an unrelated
// instance.
func (c *Controller) Open(ctx context.Context, caseID, caseName, casePrompt string) (string, error) {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateAwaitingDiagnosis {
		c.mu.Unlock()
		return "", ErrConversationActive
	}
	c.state = StateOpen
	c.caseID = caseID
	c.sessionID = ""
	c.conv = nil
	c.mu.Unlock()

	conv, err := c.engine.Open(ctx, caseName, casePrompt)

	c.mu.Lock()
	c.conv = conv
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	history := conv.History()
	return history[len(history)-1].Content, nil
}

// Send forwards one user turn to the engine. State stays OPEN.
func (c *Controller) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	if c.state != StateOpen || c.conv == nil {
		c.mu.Unlock()
		return "", ErrNoConversation
	}
	conv := c.conv
	c.mu.Unlock()

	return c.engine.SendTurn(ctx, conv, text)
}

// Finish ends the interview. With at least one real exchange recorded
// the instance moves to AWAITING_DIAGNOSIS and the caller must collect a
// diagnosis; with nothing meaningful to save it closes immediately,
// discarding the conversation with zero store writes.
func (c *Controller) Finish() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.conv == nil {
		return c.state, ErrNoConversation
	}
	if c.conv.Len() > 1 {
		c.state = StateAwaitingDiagnosis
	} else {
		c.logger.Info("nothing to save, closing conversation", "case", c.conv.CaseName)
		c.discardLocked()
	}
	return c.state, nil
}

// SubmitDiagnosis commits the finished interview to the session store.
// An empty diagnosis is a valid, explicit "no diagnosis given". The
// instance always ends up CLOSED: a persistence failure is returned but
// never strands the conversation.
func (c *Controller) SubmitDiagnosis(diagnosis string) (session.Session, error) {
	c.mu.Lock()
	if c.state != StateAwaitingDiagnosis || c.conv == nil {
		c.mu.Unlock()
		return session.Session{}, ErrNoConversation
	}

	u := store.Upsert{
		ID:         c.sessionID,
		CaseID:     c.caseID,
		CaseName:   c.conv.CaseName,
		CasePrompt: c.conv.CasePrompt,
		UserName:   c.identity.CurrentUserName(),
		Diagnosis:  &diagnosis,
		Messages:   c.conv.Transcript(),
	}
	caseName := c.conv.CaseName
	c.discardLocked()
	c.mu.Unlock()

	rec, _, err := c.sessions.Save(u)
	if err != nil {
		c.logger.Error("failed to save session", "case", caseName, "error", err)
		return session.Session{}, err
	}

	c.mu.Lock()
	c.sessionID = rec.ID
	c.mu.Unlock()

	c.logger.Info("session saved", "case", caseName, "session_id", rec.ID,
		"message_count", len(rec.Messages), "user", rec.UserName)
	return rec, nil
}

// Abort closes the instance without persisting anything.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpen || c.state == StateAwaitingDiagnosis {
		c.discardLocked()
	}
}

// discardLocked releases the conversation and marks the instance CLOSED.
// Callers hold c.mu.
func (c *Controller) discardLocked() {
	c.conv = nil
	c.state = StateClosed
}
