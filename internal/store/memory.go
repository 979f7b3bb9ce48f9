package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/selve/internal/domain"
)

// MemoryStore is an in-process Repository for development and tests.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*domain.Session
	answers     map[string]map[string]*domain.Answer // session -> question -> answer
	questions   map[string]*domain.Question
	sections    map[string]*domain.Section
	checkpoints map[string]*domain.Checkpoint
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*domain.Session),
		answers:     make(map[string]map[string]*domain.Answer),
		questions:   make(map[string]*domain.Question),
		sections:    make(map[string]*domain.Section),
		checkpoints: make(map[string]*domain.Checkpoint),
	}
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	cp.Answers = nil
	return &cp
}

// CreateSession inserts a new session record.
func (m *MemoryStore) CreateSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("insert session: duplicate id %s", session.ID)
	}
	m.sessions[session.ID] = copySession(session)
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s == nil {
		return nil, nil
	}
	return copySession(s), nil
}

// UpdateSession applies mutate to the stored session under the store lock.
func (m *MemoryStore) UpdateSession(_ context.Context, sessionID string, mutate func(*domain.Session) error) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("update session %s: %w", sessionID, domain.ErrNotFound)
	}
	session := copySession(current)
	if err := mutate(session); err != nil {
		return nil, err
	}
	m.sessions[sessionID] = copySession(session)
	return session, nil
}

// CompleteSession transitions a session to completed exactly once.
func (m *MemoryStore) CompleteSession(_ context.Context, sessionID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s == nil {
		return false, fmt.Errorf("complete session %s: %w", sessionID, domain.ErrNotFound)
	}
	return s.Complete(at), nil
}

// UpsertAnswer stores the answer and recounts the session's current step.
func (m *MemoryStore) UpsertAnswer(_ context.Context, answer *domain.Answer) (*domain.Answer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[answer.SessionID]
	if s == nil {
		return nil, 0, fmt.Errorf("upsert answer for session %s: %w", answer.SessionID, domain.ErrNotFound)
	}

	byQuestion := m.answers[answer.SessionID]
	if byQuestion == nil {
		byQuestion = make(map[string]*domain.Answer)
		m.answers[answer.SessionID] = byQuestion
	}

	stored := byQuestion[answer.QuestionID]
	if stored == nil {
		cp := *answer
		stored = &cp
		byQuestion[answer.QuestionID] = stored
	} else {
		stored.Value = answer.Value
		stored.UpdatedAt = answer.UpdatedAt
	}

	s.CurrentStep = len(byQuestion)
	s.UpdatedAt = answer.UpdatedAt

	out := *stored
	return &out, s.CurrentStep, nil
}

// ListAnswers returns a session's answers ordered by creation time.
func (m *MemoryStore) ListAnswers(_ context.Context, sessionID string) ([]*domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	answers := make([]*domain.Answer, 0, len(m.answers[sessionID]))
	for _, a := range m.answers[sessionID] {
		cp := *a
		answers = append(answers, &cp)
	}
	sort.Slice(answers, func(i, j int) bool {
		if !answers[i].CreatedAt.Equal(answers[j].CreatedAt) {
			return answers[i].CreatedAt.Before(answers[j].CreatedAt)
		}
		return answers[i].ID < answers[j].ID
	})
	return answers, nil
}

// ListQuestions returns all questions ordered by position.
func (m *MemoryStore) ListQuestions(_ context.Context) ([]*domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Question, 0, len(m.questions))
	for _, q := range m.questions {
		cp := *q
		out = append(out, &cp)
	}
	domain.SortQuestions(out)
	return out, nil
}

// ListSections returns all sections ordered by position.
func (m *MemoryStore) ListSections(_ context.Context) ([]*domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Section, 0, len(m.sections))
	for _, sec := range m.sections {
		cp := *sec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListCheckpoints returns all checkpoints ordered by section and position.
func (m *MemoryStore) ListCheckpoints(_ context.Context) ([]*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Checkpoint, 0, len(m.checkpoints))
	for _, cp := range m.checkpoints {
		c := *cp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionID != out[j].SectionID {
			return out[i].SectionID < out[j].SectionID
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveCatalog upserts the question bank.
func (m *MemoryStore) SaveCatalog(_ context.Context, catalog *domain.Catalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sec := range catalog.Sections {
		cp := *sec
		m.sections[sec.ID] = &cp
	}
	for _, q := range catalog.Questions {
		cp := *q
		m.questions[q.ID] = &cp
	}
	for _, c := range catalog.Checkpoints {
		cp := *c
		m.checkpoints[c.ID] = &cp
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*SQLStore)(nil)
)
