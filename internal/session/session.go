package session

import (
	"fmt"
	"sync"
	"time"
)

// Session is the authoritative per-id record. The registry is its sole
// owner; the transport is exclusively owned by the Session and shared with
// the output pump only through the methods below, which serialize access
// behind mu.
type Session struct {
	ID         string
	Connection ConnectionDescriptor
	CreatedAt  int64

	mu        sync.Mutex
	status    Status
	errMsg    string
	title     *string
	cwd       *string
	exitCode  *int
	transport Transport

	// StopPump is closed exactly once to signal the bound output pump to
	// exit at its next loop head (or select alternative).
	StopPump chan struct{}
	stopOnce sync.Once

	// PumpDone is closed by the pump when it has returned, used by Close to
	// bound how long it waits for teardown.
	PumpDone chan struct{}
}

// New creates a Session in Init status with no transport attached yet.
func New(id string, conn ConnectionDescriptor) *Session {
	return &Session{
		ID:         id,
		Connection: conn,
		CreatedAt:  time.Now().Unix(),
		status:     StatusInit,
		StopPump:   make(chan struct{}),
		PumpDone:   make(chan struct{}),
	}
}

// SetTransport binds the session's transport. Invariant: exactly one
// transport per session, set once.
func (s *Session) SetTransport(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// Transport returns the bound transport, or nil if none has been set yet
// (true for an SSH session still in Connecting).
func (s *Session) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TransitionTo validates and applies a status change, per the transition
// relation in the component design. Entering Error records msg; entering any
// other status clears the recorded error.
func (s *Session) TransitionTo(to Status, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(s.status, to) {
		return fmt.Errorf("invalid transition from %s to %s", s.status, to)
	}
	s.status = to
	if to == StatusError {
		if msg == "" {
			msg = "unspecified error"
		}
		s.errMsg = msg
	} else {
		s.errMsg = ""
	}
	return nil
}

// ForceSet bypasses transition validation, for recovery paths only.
func (s *Session) ForceSet(to Status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = to
	if to == StatusError {
		s.errMsg = msg
	} else {
		s.errMsg = ""
	}
}

// SetExitCode records an exit code. Only meaningful once Status is Done.
func (s *Session) SetExitCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitCode = &code
}

// SetCwd records the current working directory, typically from an OSC 7
// event observed by the output pump.
func (s *Session) SetCwd(cwd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cwd = &cwd
}

// SetTitle records the current terminal title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = &title
}

// ErrorMessage returns the message recorded on the last transition into
// Error, or empty string if the session never errored or has since left
// Error.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Snapshot produces the redacted Info view used by list/get.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.ID,
		Connection: s.Connection.Redacted(),
		Status:     s.status,
		Title:      s.title,
		Cwd:        s.cwd,
		ExitCode:   s.exitCode,
		CreatedAt:  s.CreatedAt,
	}
}

// RequestStop signals the bound pump to stop. Safe to call more than once
// and safe to call concurrently with the pump observing it.
func (s *Session) RequestStop() {
	s.stopOnce.Do(func() {
		close(s.StopPump)
	})
}

// WaitPumpDone blocks until the pump has exited or the deadline elapses,
// whichever comes first. Returns false on timeout.
func (s *Session) WaitPumpDone(timeout time.Duration) bool {
	select {
	case <-s.PumpDone:
		return true
	case <-time.After(timeout):
		return false
	}
}
