package memory

import (
	"sort"
	"time"

	"ai-consultation-be/pkg/consultation"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps consultation sessions in memory. A session expires
// ttl after it was last saved; every round saves it again.
type SessionRepository struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	// Purge expired sessions at a sixth of the ttl, never more often than once a minute.
	purge := ttl / 6
	if purge < time.Minute {
		purge = time.Minute
	}
	return &SessionRepository{
		cache: cache.New(ttl, purge),
		ttl:   ttl,
	}
}

func (r *SessionRepository) Save(session *consultation.Session) {
	r.cache.Set(session.ID, session, r.ttl)
}

func (r *SessionRepository) Get(sessionID string) (*consultation.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*consultation.Session), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

// List returns the live sessions, most recently updated first.
func (r *SessionRepository) List() []*consultation.Session {
	items := r.cache.Items()
	sessions := make([]*consultation.Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.Object.(*consultation.Session))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt().After(sessions[j].UpdatedAt())
	})
	return sessions
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// OnEvicted registers a callback for sessions that expire or are deleted.
func (r *SessionRepository) OnEvicted(fn func(sessionID string)) {
	r.cache.OnEvicted(func(key string, _ interface{}) {
		fn(key)
	})
}
