package service

import (
	"sync"

	"github.com/google/uuid"
)

// SessionGuard records the one live-sync session currently allowed to report
// gateway availability.
type SessionGuard struct {
	mu      sync.Mutex
	current string
}

func NewSessionGuard() *SessionGuard {
	return &SessionGuard{}
}

// Claim makes a new session authoritative and returns its id.
func (g *SessionGuard) Claim() string {
	id := uuid.NewString()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = id
	return id
}

func (g *SessionGuard) IsCurrent(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return id != "" && g.current == id
}

func (g *SessionGuard) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
