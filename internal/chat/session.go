package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

// State is a step of the conversation.
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StateConfirming State = "confirming"
	StatePersisting State = "persisting"
	StateError      State = "error"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// maxHistory bounds the messages kept per session.
const maxHistory = 50

type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is one user's conversation. All fields are guarded by mu; the
// controller holds it for the whole of an operation so two requests for
// the same session never interleave.
type Session struct {
	mu sync.Mutex

	ID        string            `json:"id"`
	State     State             `json:"state"`
	Pending   *core.Transaction `json:"pending,omitempty"`
	Notice    string            `json:"notice,omitempty"`
	History   []Message         `json:"history"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// View is a copy of a session safe to hand to templates.
type View struct {
	ID        string            `json:"id"`
	State     State             `json:"state"`
	Pending   *core.Transaction `json:"pending,omitempty"`
	Notice    string            `json:"notice,omitempty"`
	History   []Message         `json:"history"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewSession(id string) *Session {
	return &Session{ID: id, State: StateIdle, UpdatedAt: time.Now()}
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.ID,
		State:     s.State,
		Notice:    s.Notice,
		History:   append([]Message(nil), s.History...),
		UpdatedAt: s.UpdatedAt,
	}
	if s.Pending != nil {
		p := *s.Pending
		v.Pending = &p
	}
	return v
}

func (s *Session) say(role Role, text string, now time.Time) {
	s.History = append(s.History, Message{Role: role, Text: text, At: now})
	if len(s.History) > maxHistory {
		s.History = append([]Message(nil), s.History[len(s.History)-maxHistory:]...)
	}
}

// SessionStore keeps sessions in memory, expiring idle ones.
type SessionStore struct {
	sessions *cache.LRUCache[*Session]
}

func NewSessionStore(maxSize int, ttl time.Duration) *SessionStore {
	return &SessionStore{sessions: cache.NewLRUCache[*Session](maxSize, ttl)}
}

// Get returns the session for id, creating a new one with a fresh id when
// it is unknown or expired. The bool reports whether a session was created.
func (s *SessionStore) Get(id string) (*Session, bool) {
	if id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			return sess, false
		}
	}
	sess := NewSession(uuid.NewString())
	s.sessions.Set(sess.ID, sess)
	return sess, true
}

// Touch refreshes the session's expiry.
func (s *SessionStore) Touch(sess *Session) {
	s.sessions.Set(sess.ID, sess)
}

func (s *SessionStore) Delete(id string) {
	s.sessions.Delete(id)
}

func (s *SessionStore) Len() int {
	return s.sessions.Size()
}

func (s *SessionStore) CleanExpired() int {
	return s.sessions.CleanExpired()
}
