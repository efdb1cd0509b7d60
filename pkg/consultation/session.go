package consultation

import (
	"sync"
	"time"

	"ai-consultation-be/pkg/transcript"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// End reasons.
const (
	EndReasonUser            = "user_request"
	EndReasonPolicyViolation = "policy_violation"
)

// Session is one consultation. Rounds run one at a time; the state lock is
// held only briefly so readers never wait for a round to finish.
type Session struct {
	ID string

	roundMu sync.Mutex

	mu           sync.RWMutex
	transcript   *transcript.Transcript
	personas     []string
	status       Status
	endReason    string
	round        int
	failedRounds []int
	violations   int
	createdAt    time.Time
	updatedAt    time.Time
}

// NewSession creates an active session for the given persona ids. An empty
// id gets a random UUID.
func NewSession(id string, personas []string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Session{
		ID:         id,
		transcript: transcript.New(),
		personas:   append([]string(nil), personas...),
		status:     StatusActive,
		createdAt:  now,
		updatedAt:  now,
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID           string            `json:"id"`
	Status       Status            `json:"status"`
	EndReason    string            `json:"endReason,omitempty"`
	Round        int               `json:"round"`
	FailedRounds []int             `json:"failedRounds"`
	Violations   int               `json:"violations"`
	Personas     []string          `json:"personas"`
	Turns        []transcript.Turn `json:"turns"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.ID,
		Status:       s.status,
		EndReason:    s.endReason,
		Round:        s.round,
		FailedRounds: append([]int{}, s.failedRounds...),
		Violations:   s.violations,
		Personas:     append([]string(nil), s.personas...),
		Turns:        s.transcript.Turns(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Turns() []transcript.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Turns()
}

func (s *Session) Personas() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.personas...)
}

func (s *Session) FailedRounds() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int{}, s.failedRounds...)
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// end marks the session ended. It reports false when it already was.
func (s *Session) end(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return false
	}
	s.status = StatusEnded
	s.endReason = reason
	s.updatedAt = time.Now()
	return true
}

func (s *Session) beginRound() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return 0, false
	}
	s.round++
	s.updatedAt = time.Now()
	return s.round, true
}

func (s *Session) append(turn transcript.Turn) transcript.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.transcript.Append(turn)
	s.updatedAt = stored.Timestamp
	return stored
}

func (s *Session) window(round, previous int) []transcript.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Window(round, previous)
}

func (s *Session) markFailed(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedRounds = append(s.failedRounds, round)
}

// recordViolation counts a blocked user input and returns the new total.
func (s *Session) recordViolation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations++
	return s.violations
}
