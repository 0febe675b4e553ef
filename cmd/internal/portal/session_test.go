package portal

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewSessionToken(t *testing.T) {
	t.Parallel()

	s, err := NewSession("/tmp/x.env", 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// 32 bytes of entropy, base64url without padding = 43 chars.
	if got := len(s.Token()); got != 43 {
		t.Fatalf("token length = %d, want 43", got)
	}
	if !s.Deadline().IsZero() {
		t.Fatalf("expected zero deadline without timeout")
	}

	s2, err := NewSession("/tmp/x.env", 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Token() == s2.Token() {
		t.Fatalf("two sessions produced the same token")
	}
}

func TestSessionDeadline(t *testing.T) {
	t.Parallel()

	s, err := NewSession("/tmp/x.env", 5*time.Minute)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Deadline().Before(time.Now()) {
		t.Fatalf("deadline in the past: %v", s.Deadline())
	}
}

func TestMatchToken(t *testing.T) {
	t.Parallel()

	s, err := NewSession("/tmp/x.env", 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if !s.MatchToken(s.Token()) {
		t.Fatalf("correct token rejected")
	}
	if s.MatchToken("") {
		t.Fatalf("empty token accepted")
	}
	if s.MatchToken("wrong_token") {
		t.Fatalf("wrong token accepted")
	}
	// Same length, different content.
	flipped := []byte(s.Token())
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	if s.MatchToken(string(flipped)) {
		t.Fatalf("near-miss token accepted")
	}
}

func TestConsumeWinsExactlyOnce(t *testing.T) {
	t.Parallel()

	s, err := NewSession("/tmp/x.env", 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	const attempts = 8

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		runs int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Consume(func() error {
				mu.Lock()
				runs++
				mu.Unlock()
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrConsumed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	if runs != 1 {
		t.Fatalf("merge fn ran %d times, want 1", runs)
	}
	if s.State() != StateConsumed {
		t.Fatalf("state = %v, want consumed", s.State())
	}
}

func TestConsumeFailureLeavesSessionActive(t *testing.T) {
	t.Parallel()

	s, err := NewSession("/tmp/x.env", 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	boom := errors.New("disk full")
	if err := s.Consume(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Consume = %v, want %v", err, boom)
	}
	if s.State() != StateActive {
		t.Fatalf("state = %v, want active after fn failure", s.State())
	}

	// Retry by the same human succeeds.
	if err := s.Consume(func() error { return nil }); err != nil {
		t.Fatalf("retry Consume: %v", err)
	}
	if err := s.Consume(nil); !errors.Is(err, ErrConsumed) {
		t.Fatalf("third Consume = %v, want ErrConsumed", err)
	}
}
