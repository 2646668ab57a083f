package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maaaruch/online-voting/internal/domain"
)

// State is who is logged in. The zero value is logged out.
type State struct {
	user       string
	id         string
	loggedInAt time.Time
}

// LogIn overwrites the current user unconditionally; authenticate first.
func (s *State) LogIn(username string) {
	s.user = username
	s.id = uuid.NewString()
	s.loggedInAt = time.Now().UTC()
}

func (s *State) LogOut() {
	*s = State{}
}

func (s *State) CurrentUser() (string, bool) {
	return s.user, s.user != ""
}

// Require returns the current user or domain.ErrNotLoggedIn.
func (s *State) Require() (string, error) {
	if s.user == "" {
		return "", domain.ErrNotLoggedIn
	}
	return s.user, nil
}

// ID identifies the current login in logs. Empty when logged out.
func (s *State) ID() string {
	return s.id
}

func (s *State) LoggedInAt() time.Time {
	return s.loggedInAt
}

// BallotDraft collects candidate names one entry at a time until a blank
// entry arrives.
type BallotDraft struct {
	Election   string
	Candidates []string
}

// Add appends entry verbatim. A blank entry is the sentinel: nothing is
// appended and done is true.
func (d *BallotDraft) Add(entry string) (done bool) {
	if strings.TrimSpace(entry) == "" {
		return true
	}
	d.Candidates = append(d.Candidates, entry)
	return false
}

type Session struct {
	State
	Draft *BallotDraft
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
	}
}

func (m *Manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[userID]
	if s == nil {
		s = &Session{}
		m.sessions[userID] = s
	}
	return s
}

// Active counts sessions with a logged-in user.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if _, ok := s.CurrentUser(); ok {
			n++
		}
	}
	return n
}
