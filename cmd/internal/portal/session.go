// Package portal holds the single-use session state machine and the HTTP
// handler that serves the secret entry form.
package portal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// State is the session lifecycle state.
type State int

const (
	// StateActive accepts the form page and one submission.
	StateActive State = iota
	// StateConsumed is terminal: a submission has been accepted.
	StateConsumed
)

// ErrConsumed is returned by Consume once a submission has already won.
var ErrConsumed = errors.New("session already consumed")

// tokenBytes is the entropy of the access token before encoding.
const tokenBytes = 32

// Session is the in-memory record for one run of the portal: the access
// token, the target env file, and the one-way consumption flag.
type Session struct {
	mu    sync.Mutex
	state State

	token      string
	targetPath string
	deadline   time.Time
}

// NewSession generates a fresh unguessable token for targetPath.
// timeout <= 0 means no deadline.
func NewSession(targetPath string, timeout time.Duration) (*Session, error) {
	token, err := newToken(tokenBytes)
	if err != nil {
		return nil, err
	}

	s := &Session{
		token:      token,
		targetPath: targetPath,
	}
	if timeout > 0 {
		s.deadline = time.Now().Add(timeout)
	}
	return s, nil
}

// Token returns the URL-safe access token.
func (s *Session) Token() string { return s.token }

// TargetPath returns the env file this session saves into.
func (s *Session) TargetPath() string { return s.targetPath }

// Deadline returns the expiry time, or the zero time when no timeout is set.
func (s *Session) Deadline() time.Time { return s.deadline }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MatchToken compares candidate against the session token in constant time.
func (s *Session) MatchToken(candidate string) bool {
	if len(candidate) == 0 || len(candidate) != len(s.token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}

// Consume performs the single atomic check-and-set of the session.
//
// Under the session lock it verifies the state is still StateActive, runs
// fn (the file merge), and transitions to StateConsumed only when fn
// succeeds. A concurrent caller that loses the race gets ErrConsumed and fn
// is never run for it; an fn failure leaves the session active so the same
// human can retry.
func (s *Session) Consume(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrConsumed
	}
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	s.state = StateConsumed
	return nil
}

// newToken returns a cryptographically random URL-safe token.
func newToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
