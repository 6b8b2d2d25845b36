// Package store persists session records to a single shared JSON file.
// All writes go through one mutex and land via a temp-file rename, so a
// crash mid-write never leaves a truncated store behind.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"CaseChat/internal/session"
)

// ValidationError reports required fields missing from an insert.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required session fields: " + strings.Join(e.Missing, ", ")
}

// Upsert carries the fields of a save request. A nil Diagnosis means
// "leave unchanged" on update; a non-nil empty string is an explicit
// "no diagnosis given".
type Upsert struct {
	ID         string
	CaseID     string
	CaseName   string
	CasePrompt string
	UserName   string
	Diagnosis  *string
	Review     string
	Messages   []session.Message
}

// Store is a file-backed collection of session records keyed by id.
type Store struct {
	path     string
	textPath string
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions []session.Session
}

// New loads the session store from path, creating an empty store if the
// file does not exist. textPath, if non-empty, names a human-readable
// mirror rewritten on every save (best effort).
func New(path, textPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:     path,
		textPath: textPath,
		logger:   logger,
		now:      time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session store: %w", err)
	}
	if err := json.Unmarshal(data, &s.sessions); err != nil {
		return nil, fmt.Errorf("failed to parse session store: %w", err)
	}
	return s, nil
}

// List returns a copy of all sessions, newest first by creation time.
func (s *Store) List() []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]session.Session, len(s.sessions))
	copy(out, s.sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Get returns the session with the given id, if present.
func (s *Store) Get(id string) (session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.sessions[i], true
	}
	return session.Session{}, false
}

// Save applies an upsert. A request whose id matches an existing record
// merges the provided fields onto it; anything else inserts a new record,
// validating required fields and assigning a fresh id if none was given.
// The returned bool reports whether a record was inserted.
func (s *Store) Save(u Upsert) (session.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID != "" {
		if i := s.indexOf(u.ID); i >= 0 {
			prev := s.sessions[i]
			s.sessions[i] = s.merge(prev, u)
			if err := s.persist(); err != nil {
				s.sessions[i] = prev
				return session.Session{}, false, err
			}
			return s.sessions[i], false, nil
		}
	}

	var missing []string
	if u.CaseID == "" {
		missing = append(missing, "caseId")
	}
	if u.CaseName == "" {
		missing = append(missing, "caseName")
	}
	if len(u.Messages) == 0 {
		missing = append(missing, "messages")
	}
	if len(missing) > 0 {
		return session.Session{}, false, &ValidationError{Missing: missing}
	}

	rec := session.Session{
		ID:         u.ID,
		CaseID:     u.CaseID,
		CaseName:   u.CaseName,
		CasePrompt: u.CasePrompt,
		UserName:   u.UserName,
		Review:     u.Review,
		Messages:   append([]session.Message(nil), u.Messages...),
		Timestamp:  s.now(),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UserName == "" {
		rec.UserName = session.DefaultUserName
	}
	if u.Diagnosis != nil {
		rec.Diagnosis = *u.Diagnosis
	}

	s.sessions = append(s.sessions, rec)
	if err := s.persist(); err != nil {
		s.sessions = s.sessions[:len(s.sessions)-1]
		return session.Session{}, false, err
	}
	return rec, true, nil
}

// merge lays the provided fields over an existing record. Fields absent
// from the request keep their prior values.
func (s *Store) merge(prev session.Session, u Upsert) session.Session {
	next := prev
	if u.CaseID != "" {
		next.CaseID = u.CaseID
	}
	if u.CaseName != "" {
		next.CaseName = u.CaseName
	}
	if u.CasePrompt != "" {
		next.CasePrompt = u.CasePrompt
	}
	if u.UserName != "" {
		next.UserName = u.UserName
	}
	if len(u.Messages) > 0 {
		next.Messages = append([]session.Message(nil), u.Messages...)
	}
	if u.Diagnosis != nil {
		next.Diagnosis = *u.Diagnosis
	}
	if u.Review != "" {
		next.Review = u.Review
	}
	next.LastUpdated = s.now()
	return next
}

// DeleteByID removes one session. Absence is reported, not an error.
func (s *Store) DeleteByID(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	prev := s.sessions
	next := make([]session.Session, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	s.sessions = next
	if err := s.persist(); err != nil {
		s.sessions = prev
		return false, err
	}
	return true, nil
}

// DeleteAll clears the store and returns how many records were removed.
func (s *Store) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sessions
	s.sessions = nil
	if err := s.persist(); err != nil {
		s.sessions = prev
		return 0, err
	}
	return len(prev), nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// persist writes the full record list atomically. Callers hold s.mu.
func (s *Store) persist() error {
	records := s.sessions
	if records == nil {
		records = []session.Session{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session store: %w", err)
	}

	if s.textPath != "" {
		if err := os.WriteFile(s.textPath, []byte(formatText(records)), 0644); err != nil {
			s.logger.Warn("failed to write sessions text mirror", "error", err)
		}
	}
	return nil
}

// Search filters sessions by a case-insensitive substring match against
// the case name, user name, any message content, or the formatted date.
// It never touches the underlying store.
func Search(sessions []session.Session, query string) []session.Session {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return sessions
	}

	out := make([]session.Session, 0, len(sessions))
	for _, sess := range sessions {
		if matches(sess, term) {
			out = append(out, sess)
		}
	}
	return out
}

func matches(sess session.Session, term string) bool {
	if strings.Contains(strings.ToLower(sess.CaseName), term) {
		return true
	}
	if strings.Contains(strings.ToLower(sess.UserName), term) {
		return true
	}
	for _, msg := range sess.Messages {
		if strings.Contains(strings.ToLower(msg.Content), term) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(sess.Timestamp.Format("Jan 2, 2006")), term)
}
