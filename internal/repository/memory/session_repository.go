package memory

import (
	"time"

	"deep-research-be/internal/entity"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/research/executor"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ActiveSession bundles the live components of one pipeline run: session
// metadata, its shared state, its event bus and its sequencer.
type ActiveSession struct {
	Session *store.Session
	State   *state.Store
	Bus     *events.Bus
	Runner  *executor.Sequencer
}

// Archive snapshots the session and whatever stage outputs exist into a
// persistable record.
func (a *ActiveSession) Archive() *entity.ResearchSessionArchive {
	session := a.Session
	snap := session.Snapshot()
	archive := &entity.ResearchSessionArchive{
		Id:         session.ID,
		Query:      session.Query,
		Sources:    session.Sources,
		Status:     snap.Status,
		Error:      snap.Error,
		CreatedAt:  session.CreatedAt,
		FinishedAt: snap.FinishedAt,
	}

	snapshot := a.State.Snapshot()
	if plan, ok := snapshot[store.KeyPlan].(store.ResearchPlan); ok {
		archive.Plan = &plan
	}
	if results, ok := snapshot[store.KeyResults].([]store.ResultItem); ok {
		archive.Results = results
	}
	if feedback, ok := snapshot[store.KeyFeedback].(store.Feedback); ok {
		archive.Feedback = &feedback
	}
	if answer, ok := snapshot[store.KeyAnswer].(store.Answer); ok {
		archive.Answer = &answer
	}
	return archive
}

// SessionRepository keeps active sessions in memory. Running sessions never
// expire; finished ones linger for the retention window so clients can still
// fetch results before eviction.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(retention time.Duration) *SessionRepository {
	c := cache.New(retention, 10*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(active *ActiveSession) {
	r.cache.Set(active.Session.ID.String(), active, cache.NoExpiration)
}

// MarkFinished re-registers the session with the retention TTL.
func (r *SessionRepository) MarkFinished(sessionID uuid.UUID) {
	if x, found := r.cache.Get(sessionID.String()); found {
		r.cache.Set(sessionID.String(), x, cache.DefaultExpiration)
	}
}

func (r *SessionRepository) Get(sessionID uuid.UUID) (*ActiveSession, bool) {
	if x, found := r.cache.Get(sessionID.String()); found {
		return x.(*ActiveSession), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID uuid.UUID) {
	r.cache.Delete(sessionID.String())
}

// Count reports how many sessions are currently held, running or retained.
func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
