package service

import (
	"context"
	"errors"
	"time"

	"deep-research-be/internal/dto"
	"deep-research-be/internal/entity"
	"deep-research-be/internal/pkg/logger"
	"deep-research-be/internal/repository/contract"
	"deep-research-be/internal/repository/memory"
	"deep-research-be/internal/websocket"
	"deep-research-be/pkg/events"
	pkgNats "deep-research-be/pkg/nats"
	"deep-research-be/pkg/research/executor"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

var stageNames = [store.StageCount]string{"plan", "gather", "assess", "synthesize"}

type IResearchService interface {
	StartResearch(ctx context.Context, req *dto.StartResearchRequest) (*dto.SessionResponse, error)
	GetSession(ctx context.Context, id uuid.UUID) (*dto.SessionResponse, error)
	GetResults(ctx context.Context, id uuid.UUID) (*dto.SessionResultsResponse, error)
	GetAnswer(ctx context.Context, id uuid.UUID) (*store.Answer, error)
	ListSessions(ctx context.Context, limit, offset int) (*dto.SessionListResponse, error)
	SessionLive(id uuid.UUID) bool
}

type researchService struct {
	sessions  *memory.SessionRepository
	archive   contract.ResearchArchiveRepository
	pubSub    *gochannel.GoChannel
	hub       *websocket.Hub
	publisher *pkgNats.Publisher

	planStage       executor.Stage
	gatherStage     executor.Stage
	assessStage     executor.Stage
	synthesizeStage executor.Stage

	logger logger.ILogger
}

// NewResearchService wires the pipeline stages to the session registry, the
// websocket hub and the external bus. archive and publisher may be nil when
// Postgres or NATS are not configured; the service degrades accordingly.
func NewResearchService(
	sessions *memory.SessionRepository,
	archive contract.ResearchArchiveRepository,
	pubSub *gochannel.GoChannel,
	hub *websocket.Hub,
	publisher *pkgNats.Publisher,
	plan, gather, assess, synthesize executor.Stage,
	log logger.ILogger,
) IResearchService {
	return &researchService{
		sessions:        sessions,
		archive:         archive,
		pubSub:          pubSub,
		hub:             hub,
		publisher:       publisher,
		planStage:       plan,
		gatherStage:     gather,
		assessStage:     assess,
		synthesizeStage: synthesize,
		logger:          log,
	}
}

// StartResearch registers a new session and launches its pipeline in the
// background. The response returns immediately; progress streams over the
// session's websocket.
func (s *researchService) StartResearch(ctx context.Context, req *dto.StartResearchRequest) (*dto.SessionResponse, error) {
	session := store.NewSession(req.Query, req.Sources)

	st := state.New()
	st.Set(store.KeyQuery, store.ResearchQuery{
		ID:        session.ID,
		Content:   req.Query,
		Sources:   req.Sources,
		CreatedAt: session.CreatedAt,
	})

	bus := events.NewBus(s.pubSub, session.ID.String())
	runner := executor.NewSequencer(s.planStage, s.gatherStage, s.assessStage, s.synthesizeStage, s.logger)

	active := &memory.ActiveSession{
		Session: session,
		State:   st,
		Bus:     bus,
		Runner:  runner,
	}
	s.sessions.Save(active)

	// The relay must subscribe before the run starts so observers see every
	// event from stage one onward.
	relayCtx, cancelRelay := context.WithCancel(context.Background())
	stream, err := bus.Subscribe(relayCtx)
	if err != nil {
		cancelRelay()
		s.sessions.Delete(session.ID)
		return nil, err
	}

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for ev := range stream {
			s.hub.SendEvent(session.ID, ev)
		}
	}()

	go s.run(active, cancelRelay, relayDone)

	return sessionToResponse(session), nil
}

// run drives the pipeline to a terminal state, emits the terminal event and
// hands the session off for archiving.
func (s *researchService) run(active *memory.ActiveSession, cancelRelay context.CancelFunc, relayDone <-chan struct{}) {
	session := active.Session

	runErr := active.Runner.Run(context.Background(), session, active.State, active.Bus)
	snap := session.Snapshot()

	terminal := events.ProgressEvent{Type: events.KindSessionComplete, Status: snap.Status}
	if runErr != nil {
		terminal = events.ProgressEvent{
			Type:   events.KindSessionFailed,
			Status: snap.Status,
			Error:  snap.Error,
		}
	}
	active.Bus.Publish(terminal)

	// Let the relay drain the terminal event before shutting it down.
	cancelRelay()
	select {
	case <-relayDone:
	case <-time.After(5 * time.Second):
	}

	s.sessions.MarkFinished(session.ID)
	s.announce(session, snap, runErr)

	// With NATS configured the archive worker persists the session off the
	// hot path; without it we archive inline.
	if s.publisher == nil {
		s.archiveSession(active)
	}
}

// announce publishes the terminal session event to NATS for external
// consumers, including the archive worker.
func (s *researchService) announce(session *store.Session, snap store.SessionSnapshot, runErr error) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var event events.Event
	if runErr != nil {
		stage := ""
		var se *executor.StageError
		if errors.As(runErr, &se) {
			stage = se.Stage
		}
		event = events.SessionFailedEvent{
			SessionID: session.ID.String(),
			Query:     session.Query,
			Stage:     stage,
			Error:     snap.Error,
		}
	} else {
		duration := 0.0
		if snap.FinishedAt != nil {
			duration = snap.FinishedAt.Sub(session.CreatedAt).Seconds()
		}
		event = events.SessionCompletedEvent{
			SessionID:       session.ID.String(),
			Query:           session.Query,
			ResultCount:     s.resultCount(session.ID),
			DurationSeconds: duration,
		}
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("ResearchService", "Failed to publish terminal event", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
}

func (s *researchService) resultCount(sessionID uuid.UUID) int {
	active, found := s.sessions.Get(sessionID)
	if !found {
		return 0
	}
	results, _ := active.State.Get(store.KeyResults, []store.ResultItem(nil)).([]store.ResultItem)
	return len(results)
}

func (s *researchService) archiveSession(active *memory.ActiveSession) {
	if s.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.archive.Save(ctx, active.Archive()); err != nil {
		s.logger.Error("ResearchService", "Failed to archive session", map[string]interface{}{
			"session_id": active.Session.ID,
			"error":      err.Error(),
		})
	}
}

func (s *researchService) GetSession(ctx context.Context, id uuid.UUID) (*dto.SessionResponse, error) {
	if active, found := s.sessions.Get(id); found {
		return sessionToResponse(active.Session), nil
	}

	if s.archive != nil {
		archived, err := s.archive.FindById(ctx, id)
		if err != nil {
			return nil, err
		}
		if archived != nil {
			return archiveToResponse(archived), nil
		}
	}
	return nil, store.ErrSessionNotFound
}

func (s *researchService) GetResults(ctx context.Context, id uuid.UUID) (*dto.SessionResultsResponse, error) {
	if active, found := s.sessions.Get(id); found {
		snapshot := active.State.Snapshot()
		res := &dto.SessionResultsResponse{
			Id:     id,
			Status: active.Session.Snapshot().Status,
		}
		if plan, ok := snapshot[store.KeyPlan].(store.ResearchPlan); ok {
			res.Plan = &plan
		}
		if results, ok := snapshot[store.KeyResults].([]store.ResultItem); ok {
			res.Results = results
		}
		if feedback, ok := snapshot[store.KeyFeedback].(store.Feedback); ok {
			res.Feedback = &feedback
		}
		if answer, ok := snapshot[store.KeyAnswer].(store.Answer); ok {
			res.Answer = &answer
		}
		return res, nil
	}

	if s.archive != nil {
		archived, err := s.archive.FindById(ctx, id)
		if err != nil {
			return nil, err
		}
		if archived != nil {
			return &dto.SessionResultsResponse{
				Id:       archived.Id,
				Status:   archived.Status,
				Plan:     archived.Plan,
				Results:  archived.Results,
				Feedback: archived.Feedback,
				Answer:   archived.Answer,
			}, nil
		}
	}
	return nil, store.ErrSessionNotFound
}

// GetAnswer returns the synthesized answer of a session, live or archived.
func (s *researchService) GetAnswer(ctx context.Context, id uuid.UUID) (*store.Answer, error) {
	results, err := s.GetResults(ctx, id)
	if err != nil {
		return nil, err
	}
	if results.Answer == nil {
		return nil, store.ErrAnswerNotReady
	}
	return results.Answer, nil
}

func (s *researchService) ListSessions(ctx context.Context, limit, offset int) (*dto.SessionListResponse, error) {
	if s.archive == nil {
		return &dto.SessionListResponse{Sessions: []dto.SessionResponse{}, Limit: limit, Offset: offset}, nil
	}

	archived, err := s.archive.FindRecent(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.archive.Count(ctx)
	if err != nil {
		return nil, err
	}

	sessions := make([]dto.SessionResponse, len(archived))
	for i, a := range archived {
		sessions[i] = *archiveToResponse(a)
	}
	return &dto.SessionListResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// SessionLive reports whether the session can still stream events.
func (s *researchService) SessionLive(id uuid.UUID) bool {
	_, found := s.sessions.Get(id)
	return found
}

func sessionToResponse(session *store.Session) *dto.SessionResponse {
	snap := session.Snapshot()
	stages := make([]dto.StageStatus, store.StageCount)
	for i, name := range stageNames {
		stages[i] = dto.StageStatus{Name: name, Status: snap.StageStatuses[i]}
	}
	return &dto.SessionResponse{
		Id:         session.ID,
		Query:      session.Query,
		Sources:    session.Sources,
		Status:     snap.Status,
		Stages:     stages,
		Error:      snap.Error,
		CreatedAt:  session.CreatedAt,
		FinishedAt: snap.FinishedAt,
	}
}

func archiveToResponse(a *entity.ResearchSessionArchive) *dto.SessionResponse {
	// Per-stage statuses are not archived; reconstruct them from which
	// outputs made it into the archive.
	produced := [store.StageCount]bool{
		a.Plan != nil,
		a.Results != nil,
		a.Feedback != nil,
		a.Answer != nil,
	}
	stages := make([]dto.StageStatus, store.StageCount)
	failed := false
	for i, name := range stageNames {
		status := store.StatusCompleted
		switch {
		case failed:
			status = store.StatusPending
		case !produced[i] && a.Status == store.StatusFailed:
			status = store.StatusFailed
			failed = true
		case !produced[i]:
			status = store.StatusPending
		}
		stages[i] = dto.StageStatus{Name: name, Status: status}
	}
	return &dto.SessionResponse{
		Id:         a.Id,
		Query:      a.Query,
		Sources:    a.Sources,
		Status:     a.Status,
		Stages:     stages,
		Error:      a.Error,
		CreatedAt:  a.CreatedAt,
		FinishedAt: a.FinishedAt,
	}
}
