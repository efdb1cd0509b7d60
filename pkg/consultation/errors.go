package consultation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrSessionEnded = errors.New("consultation: session has ended")

// Failure stages of a persona turn.
const (
	StageGenerate = "generate"
	StageTimeout  = "timeout"
	StageEmpty    = "empty"
)

// PersonaFailure records a persona turn that was replaced by its fallback.
type PersonaFailure struct {
	Persona string `json:"persona"`
	Stage   string `json:"stage"`
	Err     error  `json:"-"`
}

func (f PersonaFailure) Error() string {
	return fmt.Sprintf("persona %s failed at %s: %v", f.Persona, f.Stage, f.Err)
}

func (f PersonaFailure) Unwrap() error {
	return f.Err
}

// RoundError is returned together with the round result when every persona
// in a round failed. The session stays active.
type RoundError struct {
	SessionID string
	Round     int
	Failures  []PersonaFailure
}

func (e *RoundError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("round %d of session %s failed: %s", e.Round, e.SessionID, strings.Join(parts, "; "))
}

func (e *RoundError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
