package dialogue

import (
	"sync"
	"time"

	"github.com/avbuyanov/postpilot/internal/models"
)

// State is the dialogue's current step. A typed tag rather than a raw
// string comparison chain, so transitions dispatch on one enumerated value.
type State string

const (
	// StateNew is the zero state: no conversation started yet.
	StateNew State = ""
	// StateGate waits for a successful subscription recheck.
	StateGate State = "gate"
	// StateMenu shows the main menu and dispatches into a flow.
	StateMenu State = "menu"

	StateTopic          State = "topic"
	StateAudience       State = "audience"
	StateMonetization   State = "monetization"
	StateProductDetails State = "product_details"
	StatePreferences    State = "preferences"
	StateStyle          State = "style"
	StateStyleCustom    State = "style_custom"
	StateEmotions       State = "emotions"
	StateExamples       State = "examples"
	StatePostNumber     State = "post_number"

	StateRepackageAudience State = "repackage_audience"
	StateRepackageTool     State = "repackage_tool"
	StateRepackageResult   State = "repackage_result"
)

// RepackageRequest collects the product-repackaging answers. Independent
// of the content-plan questionnaire; shares none of its fields.
type RepackageRequest struct {
	Audience string
	Tool     string
	Result   string
}

// Session is the per-chat transient dialogue state. Owned exclusively by
// the engine; one transition at a time per session (mu).
type Session struct {
	mu sync.Mutex

	ChatID   string
	UserID   string
	UserName string
	State    State

	// Request accumulates the questionnaire answers. Examples are kept
	// decoded alongside and folded into Request before save/generation.
	Request  models.ContentProfile
	Examples []models.Example

	Repackage RepackageRequest

	LastActive time.Time
}

// resetRequest clears the questionnaire for a fresh plan flow.
func (s *Session) resetRequest() {
	s.Request = models.ContentProfile{ChatID: s.ChatID}
	s.Examples = nil
}

// resetRepackage clears the repackaging answers.
func (s *Session) resetRepackage() {
	s.Repackage = RepackageRequest{}
}

// SessionStore owns all live sessions, keyed by chat id. Sessions are
// created on first event, cleared on restart, and evicted when idle.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Get returns the session for chatID, creating it if absent.
func (ss *SessionStore) Get(chatID string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess, ok := ss.sessions[chatID]
	if !ok {
		sess = &Session{
			ChatID:     chatID,
			Request:    models.ContentProfile{ChatID: chatID},
			LastActive: time.Now(),
		}
		ss.sessions[chatID] = sess
	}
	return sess
}

// Delete removes the session for chatID.
func (ss *SessionStore) Delete(chatID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, chatID)
}

// Len returns the number of live sessions.
func (ss *SessionStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// EvictIdle removes sessions whose last activity is older than maxIdle
// and returns how many were evicted.
func (ss *SessionStore) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	evicted := 0
	for id, sess := range ss.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(ss.sessions, id)
			evicted++
		}
	}
	return evicted
}
