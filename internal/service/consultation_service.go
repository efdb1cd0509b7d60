package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/mapper"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/repository/memory"
	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/events"
	pktNats "ai-consultation-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
)

type IConsultationService interface {
	CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	ListSessions(ctx context.Context) ([]dto.SessionSummaryResponse, error)
	Show(ctx context.Context, id string) (*dto.SessionResponse, error)
	SendRound(ctx context.Context, id string, req *dto.SendRoundRequest) (*dto.RoundResponse, error)
	EndSession(ctx context.Context, id string) (*dto.SessionResponse, error)
	Exists(id string) bool
	TurnsSince(id string, afterSeq int64) ([]consultation.TurnRecord, error)
	ListPersonas(ctx context.Context) []dto.PersonaResponse
}

// SessionNotifier pushes session level messages to live watchers.
type SessionNotifier interface {
	Notify(ctx context.Context, sessionID, msgType string, payload interface{})
}

type consultationService struct {
	orchestrator *consultation.Orchestrator
	sessionRepo  *memory.SessionRepository
	notifier     SessionNotifier
	events       pktNats.EventPublisher
	mapper       *mapper.ConsultationMapper
	logger       logger.ILogger
}

// NewConsultationService wires the HTTP facing session operations.
// notifier and publisher may be nil.
func NewConsultationService(
	orchestrator *consultation.Orchestrator,
	sessionRepo *memory.SessionRepository,
	notifier SessionNotifier,
	publisher pktNats.EventPublisher,
	log logger.ILogger,
) IConsultationService {
	return &consultationService{
		orchestrator: orchestrator,
		sessionRepo:  sessionRepo,
		notifier:     notifier,
		events:       publisher,
		mapper:       mapper.NewConsultationMapper(),
		logger:       log,
	}
}

func (s *consultationService) CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	roster := s.orchestrator.Roster()

	var session *consultation.Session
	if len(req.Personas) == 0 {
		session = s.orchestrator.NewSession("")
	} else {
		// Keep roster order whatever order the request lists them in.
		wanted := make(map[string]bool, len(req.Personas))
		for _, raw := range req.Personas {
			id := strings.ToLower(strings.TrimSpace(raw))
			if _, ok := roster.Get(id); !ok {
				return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Unknown persona %q", raw))
			}
			wanted[id] = true
		}
		ids := make([]string, 0, len(wanted))
		for _, id := range roster.IDs() {
			if wanted[id] {
				ids = append(ids, id)
			}
		}
		session = consultation.NewSession("", ids)
	}

	s.sessionRepo.Save(session)
	s.logger.Info("ConsultationService", "Session created", map[string]interface{}{
		"session_id": session.ID,
		"personas":   session.Personas(),
	})
	return s.mapper.SessionToResponse(session), nil
}

func (s *consultationService) ListSessions(ctx context.Context) ([]dto.SessionSummaryResponse, error) {
	sessions := s.sessionRepo.List()
	res := make([]dto.SessionSummaryResponse, 0, len(sessions))
	for _, session := range sessions {
		res = append(res, s.mapper.SessionToSummary(session))
	}
	return res, nil
}

func (s *consultationService) get(id string) (*consultation.Session, error) {
	session, ok := s.sessionRepo.Get(id)
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	return session, nil
}

func (s *consultationService) Exists(id string) bool {
	_, ok := s.sessionRepo.Get(id)
	return ok
}

// TurnsSince returns the recorded turns with a sequence number above
// afterSeq, in order. Ended sessions stay readable until they expire.
func (s *consultationService) TurnsSince(id string, afterSeq int64) ([]consultation.TurnRecord, error) {
	session, err := s.get(id)
	if err != nil {
		return nil, err
	}
	var out []consultation.TurnRecord
	for _, turn := range session.Turns() {
		if turn.Seq > afterSeq {
			out = append(out, consultation.NewTurnRecord(session.ID, turn))
		}
	}
	return out, nil
}

func (s *consultationService) Show(ctx context.Context, id string) (*dto.SessionResponse, error) {
	session, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.mapper.SessionToResponse(session), nil
}

// SendRound runs one round. A round in which every persona fell back is
// still a successful request; the response flags it.
func (s *consultationService) SendRound(ctx context.Context, id string, req *dto.SendRoundRequest) (*dto.RoundResponse, error) {
	session, err := s.get(id)
	if err != nil {
		return nil, err
	}

	result, err := s.orchestrator.RunRound(ctx, session, req.Message)
	var roundErr *consultation.RoundError
	switch {
	case errors.Is(err, consultation.ErrSessionEnded):
		return nil, fiber.NewError(fiber.StatusConflict, "Session has ended")
	case err != nil && !errors.As(err, &roundErr):
		return nil, err
	}

	// Refresh the expiry.
	s.sessionRepo.Save(session)

	if result.SessionEnded {
		s.announceEnd(ctx, session)
	}
	return s.mapper.RoundToResponse(result), nil
}

func (s *consultationService) EndSession(ctx context.Context, id string) (*dto.SessionResponse, error) {
	session, err := s.get(id)
	if err != nil {
		return nil, err
	}

	if session.Status() == consultation.StatusActive {
		s.orchestrator.EndSession(session, consultation.EndReasonUser)
		s.announceEnd(ctx, session)
	}
	return s.mapper.SessionToResponse(session), nil
}

func (s *consultationService) announceEnd(ctx context.Context, session *consultation.Session) {
	snap := session.Snapshot()
	payload := map[string]interface{}{
		"sessionId": snap.ID,
		"reason":    snap.EndReason,
		"rounds":    snap.Round,
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, snap.ID, "session_ended", payload)
	}
	if s.events != nil {
		if err := s.events.Publish(context.WithoutCancel(ctx), events.New(events.TypeSessionEnded, payload)); err != nil {
			s.logger.Warn("ConsultationService", "Failed to publish session end", map[string]interface{}{
				"session_id": snap.ID,
				"error":      err.Error(),
			})
		}
	}
}

func (s *consultationService) ListPersonas(ctx context.Context) []dto.PersonaResponse {
	profiles := s.orchestrator.Roster().Profiles()
	res := make([]dto.PersonaResponse, 0, len(profiles))
	for _, p := range profiles {
		res = append(res, s.mapper.ProfileToResponse(p))
	}
	return res
}
