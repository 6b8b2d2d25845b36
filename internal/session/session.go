package session

import "time"

// Message roles as they appear on the wire to the language model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultUserName is used when a session is saved without a learner name.
const DefaultUserName = "Anonymous"

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session represents one finished patient interview tied to a case.
// Messages excludes the system instruction; Review is absent until generated.
type Session struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	CaseName    string    `json:"caseName"`
	CasePrompt  string    `json:"casePrompt"`
	UserName    string    `json:"userName"`
	Diagnosis   string    `json:"diagnosis"`
	Messages    []Message `json:"messages"`
	Review      string    `json:"review,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	LastUpdated time.Time `json:"lastUpdated,omitzero"`
}

// Case is a reusable scenario definition presented to the learner.
// Name is the unique key; a session stores a copy of Prompt at open time.
type Case struct {
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
}
