// Package review generates post-interview feedback for saved sessions.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"CaseChat/internal/gateway"
	"CaseChat/internal/session"
	"CaseChat/internal/store"
)

const reviewSystemMessage = "You are an AI assistant providing reviews of conversations."

// fallbackGuidelines is used when the guidelines file is missing or
// unreadable. Review generation never fails over guidelines.
const fallbackGuidelines = "Please review this conversation and provide constructive feedback."

// SessionUpdater is the slice of the session store the generator needs.
type SessionUpdater interface {
	Save(u store.Upsert) (session.Session, bool, error)
}

// Generator produces reviews of finished interview sessions. Reviews are
// computed at most once per session: an existing review is returned
// verbatim without touching the gateway.
type Generator struct {
	gw             gateway.Completer
	sessions       SessionUpdater
	guidelinesPath string
	model          string
	temperature    float64
	logger         *slog.Logger
}

// NewGenerator creates a review generator. guidelinesPath may point at a
// missing file.
func NewGenerator(gw gateway.Completer, sessions SessionUpdater, guidelinesPath, model string, temperature float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		gw:             gw,
		sessions:       sessions,
		guidelinesPath: guidelinesPath,
		model:          model,
		temperature:    temperature,
		logger:         logger,
	}
}

// Generate returns the review for a session, producing and persisting
// one if the session has none yet. A gateway failure is surfaced and
// leaves the session without a review, so a later retry starts fresh.
func (g *Generator) Generate(ctx context.Context, s session.Session) (string, error) {
	if s.Review != "" {
		g.logger.Info("session already reviewed, returning stored review", "session_id", s.ID)
		return s.Review, nil
	}

	prompt := g.buildPrompt(s)
	reply, err := g.gw.Complete(ctx, gateway.Request{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []session.Message{
			{Role: session.RoleSystem, Content: reviewSystemMessage},
			{Role: session.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		g.logger.Error("failed to generate review", "session_id", s.ID, "error", err)
		return "", fmt.Errorf("failed to generate review: %w", err)
	}

	// Key the write by the existing id so this is always an update,
	// never a second record.
	if _, _, err := g.sessions.Save(store.Upsert{ID: s.ID, Review: reply.Content}); err != nil {
		return "", fmt.Errorf("failed to save review: %w", err)
	}

	g.logger.Info("review generated", "session_id", s.ID, "length", len(reply.Content))
	return reply.Content, nil
}

// buildPrompt assembles guidelines, case prompt, diagnosis section and
// transcript into the single user message sent for review.
func (g *Generator) buildPrompt(s session.Session) string {
	guidelines := g.loadGuidelines()

	casePrompt := s.CasePrompt
	if casePrompt == "" {
		casePrompt = "No case prompt available"
	}

	diagnosis := strings.TrimSpace(s.Diagnosis)
	diagnosisSection := "Student did not provide a differential diagnosis.\n\n"
	if diagnosis != "" {
		diagnosisSection = fmt.Sprintf("### Student's Differential Diagnosis ###\n\n%s\n\n", diagnosis)
	}

	lines := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
	}
	transcript := strings.Join(lines, "\n\n")

	return fmt.Sprintf("%s\n\n### Case Prompt ###\n\n%s\n\n%s### Conversation Transcript ###\n\n%s",
		guidelines, casePrompt, diagnosisSection, transcript)
}

func (g *Generator) loadGuidelines() string {
	data, err := os.ReadFile(g.guidelinesPath)
	if err != nil {
		g.logger.Warn("could not load review guidelines, using fallback", "path", g.guidelinesPath, "error", err)
		return fallbackGuidelines
	}
	return string(data)
}
