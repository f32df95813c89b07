package license

import (
	"sync"
	"time"
)

// SignalStatus reports whether the user must enter a credential again.
type SignalStatus struct {
	Required bool      `json:"credential_required"`
	Reason   string    `json:"reason,omitempty"`
	RaisedAt time.Time `json:"raised_at,omitzero"`
}

// Signal records that the credential in use was rejected or is missing.
// It stays raised until a new credential is stored.
type Signal struct {
	mu     sync.Mutex
	status SignalStatus
}

// NewSignal creates a lowered signal.
func NewSignal() *Signal {
	return &Signal{}
}

// Raise marks the credential as needing re-entry.
func (s *Signal) Raise(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = SignalStatus{Required: true, RaisedAt: time.Now()}
	if err != nil {
		s.status.Reason = err.Error()
	}
}

// Clear lowers the signal.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = SignalStatus{}
}

// Status returns the current state of the signal.
func (s *Signal) Status() SignalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
