package transcript

import (
	"time"
)

// Speaker is User, System or a persona id.
type Speaker string

const (
	SpeakerUser   Speaker = "User"
	SpeakerSystem Speaker = "System"
)

func PersonaSpeaker(id string) Speaker {
	return Speaker(id)
}

func (s Speaker) IsPersona() bool {
	return s != SpeakerUser && s != SpeakerSystem && s != ""
}

// Turn is immutable once appended. Raw holds what the speaker produced,
// except for intercepted turns where it holds the rendered text so that
// disallowed text is never stored.
type Turn struct {
	Seq         int64     `json:"seq"`
	Round       int       `json:"round"`
	Speaker     Speaker   `json:"speaker"`
	Name        string    `json:"name"`
	Raw         string    `json:"raw"`
	Rendered    string    `json:"rendered"`
	Target      string    `json:"target,omitempty"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason"`
	Intercepted bool      `json:"intercepted,omitempty"`
	Fallback    bool      `json:"fallback,omitempty"`
	Rebuttal    bool      `json:"rebuttal,omitempty"`
	Evidence    []uint64  `json:"evidence,omitempty"`
	Citations   []uint64  `json:"citations,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Label is the name shown in front of the turn in prompts and transcripts.
func (t Turn) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.Speaker)
}

// Transcript is the ordered turn log of one session. It is not safe for
// concurrent use; the owning session serializes access.
type Transcript struct {
	turns []Turn
	now   func() time.Time
}

func New() *Transcript {
	return &Transcript{now: time.Now}
}

// Append assigns the next sequence number and returns the stored turn.
// Sequence numbers start at 1 and have no gaps.
func (t *Transcript) Append(turn Turn) Turn {
	turn.Seq = int64(len(t.turns)) + 1
	if turn.Timestamp.IsZero() {
		turn.Timestamp = t.now()
	}
	turn.Evidence = append([]uint64(nil), turn.Evidence...)
	turn.Citations = append([]uint64(nil), turn.Citations...)
	t.turns = append(t.turns, turn)
	return turn
}

func (t *Transcript) Len() int {
	return len(t.turns)
}

func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Since returns the turns with a sequence number greater than seq.
func (t *Transcript) Since(seq int64) []Turn {
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(t.turns)) {
		return []Turn{}
	}
	out := make([]Turn, int64(len(t.turns))-seq)
	copy(out, t.turns[seq:])
	return out
}

// Window returns the turns of round and of the previous rounds before it.
func (t *Transcript) Window(round, previous int) []Turn {
	if previous < 0 {
		previous = 0
	}
	from := round - previous
	out := make([]Turn, 0)
	for _, turn := range t.turns {
		if turn.Round >= from && turn.Round <= round {
			out = append(out, turn)
		}
	}
	return out
}

func (t *Transcript) Round(round int) []Turn {
	return t.Window(round, 0)
}
