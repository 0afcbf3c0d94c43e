package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
)

// MemoryStore keeps sessions in process memory. It is used when sessions
// are disabled and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
	nextID   int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("insert session: %s already exists", sess.ID)
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Rename(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	sess.Name = strings.TrimSpace(name)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionSummary, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sum := SessionSummary{
			ID:           id,
			Name:         sess.Name,
			Summary:      sess.Summary,
			Threshold:    sess.Threshold,
			MessageCount: len(s.messages[id]),
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		}
		for _, m := range s.messages[id] {
			sum.InputTokens += m.InputTokens
			sum.OutputTokens += m.OutputTokens
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(sessionID, msg)
	return nil
}

// AppendTurn stores a user message and its reply under one lock.
func (s *MemoryStore) AppendTurn(ctx context.Context, sessionID string, user, reply *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(sessionID, user)
	s.appendLocked(sessionID, reply)
	return nil
}

func (s *MemoryStore) appendLocked(sessionID string, msg *Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &Session{ID: sessionID, CreatedAt: msg.CreatedAt}
		s.sessions[sessionID] = sess
	}
	if sess.Summary == "" && msg.Role == llm.RoleUser {
		sess.Summary = TruncateSummary(msg.Content)
	}
	sess.UpdatedAt = msg.CreatedAt

	s.nextID++
	msg.ID = s.nextID
	msg.SessionID = sessionID
	msg.Sequence = len(s.messages[sessionID])
	s.messages[sessionID] = append(s.messages[sessionID], *msg)
}

func (s *MemoryStore) LoadMessages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	if len(msgs) == 0 {
		return nil, nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) SetGrade(ctx context.Context, sessionID string, messageID int64, grade int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Grade = grade
			return nil
		}
	}
	return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
}

func (s *MemoryStore) LoadContextThreshold(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.Threshold, nil
	}
	return 0, nil
}

func (s *MemoryStore) SetContextThreshold(ctx context.Context, sessionID string, threshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	sess.Threshold = threshold
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
