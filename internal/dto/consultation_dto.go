package dto

import "time"

type CreateSessionRequest struct {
	// Personas limits the panel to these ids. Empty seats the full roster.
	Personas []string `json:"personas" validate:"omitempty,max=8,dive,required,max=32"`
}

type SendRoundRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type TurnResponse struct {
	Seq         int64     `json:"seq"`
	Round       int       `json:"round"`
	Speaker     string    `json:"speaker"`
	Name        string    `json:"name"`
	Text        string    `json:"text"`
	Target      string    `json:"target,omitempty"`
	Decision    string    `json:"policy_decision"`
	Reason      string    `json:"policy_reason"`
	Intercepted bool      `json:"intercepted"`
	Fallback    bool      `json:"fallback"`
	Rebuttal    bool      `json:"rebuttal"`
	Evidence    []uint64  `json:"evidence,omitempty"`
	Citations   []uint64  `json:"citations,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type SessionResponse struct {
	Id           string         `json:"id"`
	Status       string         `json:"status"`
	EndReason    string         `json:"end_reason,omitempty"`
	Round        int            `json:"round"`
	FailedRounds []int          `json:"failed_rounds"`
	Violations   int            `json:"violations"`
	Personas     []string       `json:"personas"`
	Turns        []TurnResponse `json:"turns"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type SessionSummaryResponse struct {
	Id        string    `json:"id"`
	Status    string    `json:"status"`
	Round     int       `json:"round"`
	TurnCount int       `json:"turn_count"`
	Personas  []string  `json:"personas"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PersonaFailureResponse struct {
	Persona string `json:"persona"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

type RoundResponse struct {
	SessionId    string                   `json:"session_id"`
	Round        int                      `json:"round"`
	UserDecision string                   `json:"user_decision"`
	UserReason   string                   `json:"user_reason"`
	UserTurn     TurnResponse             `json:"user_turn"`
	Turns        []TurnResponse           `json:"turns"`
	RoundFailed  bool                     `json:"round_failed"`
	Failures     []PersonaFailureResponse `json:"failures,omitempty"`
	SessionEnded bool                     `json:"session_ended"`
}

// TurnEventMessage is pushed to websocket clients watching a session.
type TurnEventMessage struct {
	Type string      `json:"type"` // "turn"
	Data interface{} `json:"data"`
}
