package gateway

import (
	"context"
	"sync"

	"CaseChat/internal/session"
)

// Scripted is an in-memory Completer that plays back queued replies in
// order. Used by tests and by local development without an API key.
type Scripted struct {
	mu      sync.Mutex
	replies []scriptedReply
	// Requests records every request received, in order.
	Requests []Request
}

type scriptedReply struct {
	content string
	err     error
}

// NewScripted creates a scripted completer.
func NewScripted() *Scripted {
	return &Scripted{}
}

// QueueReply queues one assistant reply.
func (s *Scripted) QueueReply(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{content: content})
}

// QueueError queues one failure.
func (s *Scripted) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{err: err})
}

// Calls returns how many requests have been received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// Complete pops the next scripted reply. An exhausted script fails.
func (s *Scripted) Complete(ctx context.Context, req Request) (session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)

	if len(s.replies) == 0 {
		return session.Message{}, &Error{Message: "scripted gateway: no replies queued"}
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	if next.err != nil {
		return session.Message{}, next.err
	}
	return session.Message{Role: session.RoleAssistant, Content: next.content}, nil
}
