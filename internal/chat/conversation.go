// Package chat owns the live patient interview: the in-memory
// conversation exchanged with the language model and the lifecycle that
// turns a finished interview into a saved session record.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"CaseChat/internal/gateway"
	"CaseChat/internal/session"
)

// systemTemplate is the patient-simulation instruction. The case prompt
// is interpolated; the fixed greeting line keeps first replies uniform.
const systemTemplate = "You are an AI assistant helping with a case. You are ChatGPT, and your task is to simulate a patient attending the internal medicine department of a hospital. The student will talk to you and ask questions to make a preliminary diagnosis. Your character will answer only the questions asked by the student, providing no extra information. The patient's details are as follows:\n\n %s \n\nInstructions for the Student:\n\nEngage with the patient by asking relevant questions to gather necessary information for a preliminary diagnosis. The patient will respond concisely and only provide information in direct response to your questions.\n\nYour first message always be: \"Hello doctor!\""

// apologyMessage substitutes the assistant reply when the gateway fails
// mid-conversation, so no user turn is ever left unanswered.
const apologyMessage = "Sorry, I encountered an error. Please try again."

// ErrBusy reports a turn sent while the previous reply is still pending.
// The attempt is dropped, not queued.
var ErrBusy = errors.New("a reply is still pending for this conversation")

// ModelParams selects the model for gateway calls. Passed explicitly;
// there is no shared mutable configuration.
type ModelParams struct {
	Model       string
	Temperature float64
}

// Speaker receives assistant replies for speech output. Calls are
// fire-and-forget: implementations must not block and any failure is
// invisible to the conversation.
type Speaker interface {
	Speak(text string)
}

// NopSpeaker discards speech output.
type NopSpeaker struct{}

func (NopSpeaker) Speak(string) {}

// Conversation is the live, in-memory exchange for one case instance.
// History starts with the system instruction, then the synthetic kickoff
// user turn, then strictly alternating assistant/user turns.
type Conversation struct {
	CaseName   string
	CasePrompt string

	mu      sync.Mutex
	history []session.Message
	busy    bool
}

// History returns a copy of the full history, system instruction included.
func (c *Conversation) History() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Message(nil), c.history...)
}

// Len returns the current history length.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Transcript returns the messages that belong in a saved session:
// everything past the system instruction and the kickoff turn. The
// assistant greeting is the first entry.
func (c *Conversation) Transcript() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) <= 2 {
		return nil
	}
	return append([]session.Message(nil), c.history[2:]...)
}

// Engine drives conversations against the gateway.
type Engine struct {
	gw      gateway.Completer
	params  ModelParams
	speaker Speaker
	logger  *slog.Logger
}

// NewEngine creates a conversation engine.
func NewEngine(gw gateway.Completer, params ModelParams, speaker Speaker, logger *slog.Logger) *Engine {
	if speaker == nil {
		speaker = NopSpeaker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{gw: gw, params: params, speaker: speaker, logger: logger}
}

// Open starts a conversation for a case and immediately runs the kickoff
// exchange: the raw case prompt is sent as a synthetic user turn to
// elicit the greeting reply. If the kickoff fails the turn is rolled
// back, leaving only the system instruction, and the error is returned;
// the conversation itself is still usable.
func (e *Engine) Open(ctx context.Context, caseName, casePrompt string) (*Conversation, error) {
	conv := &Conversation{
		CaseName:   caseName,
		CasePrompt: casePrompt,
		history: []session.Message{
			{Role: session.RoleSystem, Content: fmt.Sprintf(systemTemplate, casePrompt)},
		},
	}

	conv.history = append(conv.history, session.Message{Role: session.RoleUser, Content: casePrompt})
	reply, err := e.gw.Complete(ctx, gateway.Request{
		Model:       e.params.Model,
		Temperature: e.params.Temperature,
		Messages:    conv.history,
	})
	if err != nil {
		conv.history = conv.history[:1]
		e.logger.Error("failed to open conversation", "case", caseName, "error", err)
		return conv, fmt.Errorf("failed to open conversation: %w", err)
	}

	conv.history = append(conv.history, reply)
	e.logger.Info("conversation opened", "case", caseName)
	e.speaker.Speak(reply.Content)
	return conv, nil
}

// SendTurn appends the user turn, replays the entire history to the
// gateway and appends the reply. A gateway failure is absorbed: a fixed
// apology is substituted so the transcript stays well-formed, and no
// error is returned. Only one turn may be in flight per conversation.
func (e *Engine) SendTurn(ctx context.Context, conv *Conversation, userText string) (string, error) {
	conv.mu.Lock()
	if conv.busy {
		conv.mu.Unlock()
		return "", ErrBusy
	}
	conv.busy = true
	conv.history = append(conv.history, session.Message{Role: session.RoleUser, Content: userText})
	msgs := append([]session.Message(nil), conv.history...)
	conv.mu.Unlock()

	reply, err := e.gw.Complete(ctx, gateway.Request{
		Model:       e.params.Model,
		Temperature: e.params.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		e.logger.Error("gateway call failed, substituting apology", "case", conv.CaseName, "error", err)
		reply = session.Message{Role: session.RoleAssistant, Content: apologyMessage}
	}

	conv.mu.Lock()
	conv.history = append(conv.history, reply)
	conv.busy = false
	conv.mu.Unlock()

	e.speaker.Speak(reply.Content)
	return reply.Content, nil
}
