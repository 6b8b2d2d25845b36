// Package gateway is the boundary to the language-model API. The server
// holds the API key; browsers never see it.
package gateway

import (
	"context"

	"CaseChat/internal/session"
)

// Request is one chat-completion exchange: the full ordered history is
// replayed on every call.
type Request struct {
	Model       string            `json:"model"`
	Messages    []session.Message `json:"messages"`
	Temperature float64           `json:"temperature"`
}

// Response mirrors the OpenAI chat-completions response body. It is
// passed back verbatim by the proxy endpoint.
type Response struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int             `json:"index"`
		Message session.Message `json:"message"`
		// FinishReason is "stop" on a normal completion.
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage,omitempty"`
}

// Completer is the one capability the conversation core needs from the
// language model: given role-tagged messages, produce one assistant
// message or fail.
type Completer interface {
	Complete(ctx context.Context, req Request) (session.Message, error)
}

// Error is a gateway failure: the upstream API rejected the call or the
// network did. Status is the upstream HTTP status, or 0 when the request
// never completed.
type Error struct {
	Status  int
	Message string
	// Body holds the raw upstream error payload when one was returned,
	// so the proxy endpoint can pass it through.
	Body []byte
}

func (e *Error) Error() string {
	return "gateway error: " + e.Message
}
