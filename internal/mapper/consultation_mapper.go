package mapper

import (
	"ai-consultation-be/internal/dto"
	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/persona"
	"ai-consultation-be/pkg/transcript"
)

type ConsultationMapper struct{}

func NewConsultationMapper() *ConsultationMapper {
	return &ConsultationMapper{}
}

func (m *ConsultationMapper) TurnToResponse(t transcript.Turn) dto.TurnResponse {
	return dto.TurnResponse{
		Seq:         t.Seq,
		Round:       t.Round,
		Speaker:     string(t.Speaker),
		Name:        t.Label(),
		Text:        t.Rendered,
		Target:      t.Target,
		Decision:    t.Decision,
		Reason:      t.Reason,
		Intercepted: t.Intercepted,
		Fallback:    t.Fallback,
		Rebuttal:    t.Rebuttal,
		Evidence:    t.Evidence,
		Citations:   t.Citations,
		CreatedAt:   t.Timestamp,
	}
}

func (m *ConsultationMapper) TurnsToResponse(turns []transcript.Turn) []dto.TurnResponse {
	res := make([]dto.TurnResponse, 0, len(turns))
	for _, t := range turns {
		res = append(res, m.TurnToResponse(t))
	}
	return res
}

func (m *ConsultationMapper) SessionToResponse(s *consultation.Session) *dto.SessionResponse {
	if s == nil {
		return nil
	}
	snap := s.Snapshot()
	return &dto.SessionResponse{
		Id:           snap.ID,
		Status:       string(snap.Status),
		EndReason:    snap.EndReason,
		Round:        snap.Round,
		FailedRounds: snap.FailedRounds,
		Violations:   snap.Violations,
		Personas:     snap.Personas,
		Turns:        m.TurnsToResponse(snap.Turns),
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
}

func (m *ConsultationMapper) SessionToSummary(s *consultation.Session) dto.SessionSummaryResponse {
	snap := s.Snapshot()
	return dto.SessionSummaryResponse{
		Id:        snap.ID,
		Status:    string(snap.Status),
		Round:     snap.Round,
		TurnCount: len(snap.Turns),
		Personas:  snap.Personas,
		UpdatedAt: snap.UpdatedAt,
	}
}

func (m *ConsultationMapper) RoundToResponse(r *consultation.RoundResult) *dto.RoundResponse {
	if r == nil {
		return nil
	}
	failures := make([]dto.PersonaFailureResponse, 0, len(r.Failures))
	for _, f := range r.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		failures = append(failures, dto.PersonaFailureResponse{
			Persona: f.Persona,
			Stage:   f.Stage,
			Error:   msg,
		})
	}
	return &dto.RoundResponse{
		SessionId:    r.SessionID,
		Round:        r.Round,
		UserDecision: string(r.UserVerdict.Decision),
		UserReason:   string(r.UserVerdict.Reason),
		UserTurn:     m.TurnToResponse(r.UserTurn),
		Turns:        m.TurnsToResponse(r.Turns),
		RoundFailed:  r.RoundFailed,
		Failures:     failures,
		SessionEnded: r.SessionEnded,
	}
}

func (m *ConsultationMapper) ProfileToResponse(p persona.Profile) dto.PersonaResponse {
	return dto.PersonaResponse{
		Id:           p.ID,
		DisplayName:  p.Name(),
		Role:         p.Role,
		Aliases:      p.Aliases,
		Grounded:     p.Grounded,
		Mediator:     p.Mediator,
		Expertise:    p.Expertise,
		Tone:         p.Style.Tone,
		MentionNames: p.MentionNames(),
	}
}
