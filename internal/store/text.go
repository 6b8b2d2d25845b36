package store

import (
	"fmt"
	"sort"
	"strings"

	"CaseChat/internal/session"
)

// formatText renders the record list as the readable sessions log that is
// mirrored next to the JSON file, newest session first.
func formatText(records []session.Session) string {
	sorted := make([]session.Session, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	var b strings.Builder
	b.WriteString("=== SESSIONS LOG ===\n\n")

	for _, sess := range sorted {
		fmt.Fprintf(&b, "===== SESSION ID: %s =====\n", sess.ID)
		fmt.Fprintf(&b, "CASE: %s\n", sess.CaseName)
		fmt.Fprintf(&b, "DATE: %s\n", sess.Timestamp.Format("1/2/2006, 3:04:05 PM"))
		userName := sess.UserName
		if userName == "" {
			userName = session.DefaultUserName
		}
		fmt.Fprintf(&b, "USER: %s\n", userName)
		casePrompt := sess.CasePrompt
		if casePrompt == "" {
			casePrompt = "Not available"
		}
		fmt.Fprintf(&b, "CASE PROMPT: %s\n\n", casePrompt)

		if strings.TrimSpace(sess.Diagnosis) != "" {
			fmt.Fprintf(&b, "DIFFERENTIAL DIAGNOSIS:\n%s\n\n", sess.Diagnosis)
		} else {
			b.WriteString("DIFFERENTIAL DIAGNOSIS: Not provided\n\n")
		}

		b.WriteString("CONVERSATION:\n")
		if len(sess.Messages) > 0 {
			for _, msg := range sess.Messages {
				fmt.Fprintf(&b, "%s: %s\n\n", strings.ToUpper(msg.Role), msg.Content)
			}
		} else {
			b.WriteString("No messages available\n\n")
		}

		if sess.Review != "" {
			fmt.Fprintf(&b, "AI REVIEW:\n%s\n\n", sess.Review)
		}

		b.WriteString("=================================\n\n")
	}
	return b.String()
}
