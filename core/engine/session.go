package engine

import "sync"

// SessionState identifies a conversational state of one user.
type SessionState string

const (
	StateUnregistered      SessionState = "unregistered"
	StateMainMenu          SessionState = "main_menu"
	StateSubmenu           SessionState = "submenu"
	StateAskAdmin          SessionState = "ask_admin"
	StateAdminMain         SessionState = "admin_main"
	StateAdminAnswering    SessionState = "admin_answering"
	StateAdminConfirmBlock SessionState = "admin_confirm_block"
)

// Session is the ephemeral per-user navigation state. It lives in
// process memory only; after a restart the first input re-derives it
// from the user's role and main-menu link.
type Session struct {
	State  SessionState
	MenuID int64

	// AskReply is the confirmation text sent once a question is stored,
	// captured from the ask_admin button that opened the flow.
	AskReply string

	// Current question being answered in the operator flow.
	QuestionID     int64
	QuestionUserID int64
	QuestionText   string
}

// sessionStore owns the ephemeral sessions of one process, keyed by
// platform identifier.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[int64]*Session)}
}

// get returns the session for a user or nil when none exists yet.
func (s *sessionStore) get(platformID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[platformID]
}

// put stores the session for a user.
func (s *sessionStore) put(platformID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[platformID] = sess
}

// drop removes the session, forcing re-derivation on next input.
func (s *sessionStore) drop(platformID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, platformID)
}

// reset clears all sessions.
func (s *sessionStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[int64]*Session)
}
