package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/metrics"
)

// DefaultSessionTTL is how long an untouched map session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Session is one viewer's map: its renderer and the project it shows.
type Session struct {
	ID       string
	Project  string
	Renderer *maputil.Renderer
	Created  time.Time
}

// SessionService holds map sessions in memory and drops them once idle.
type SessionService struct {
	cache   *cache.Cache
	ttl     time.Duration
	factory func() *maputil.Renderer
	bus     *EventBus
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionTTL sets the idle timeout.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRendererFactory sets how new sessions build their renderer.
func WithRendererFactory(fn func() *maputil.Renderer) SessionOption {
	return func(s *SessionService) { s.factory = fn }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(s *SessionService) { s.log = l }
}

// WithSessionMetrics sets the metrics sink.
func WithSessionMetrics(m *metrics.Metrics) SessionOption {
	return func(s *SessionService) { s.metrics = m }
}

// NewSessionService creates a session store. Mutations are published on bus,
// which may be nil.
func NewSessionService(bus *EventBus, opts ...SessionOption) *SessionService {
	s := &SessionService{
		ttl:     DefaultSessionTTL,
		factory: func() *maputil.Renderer { return maputil.New() },
		bus:     bus,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.New(s.ttl, s.ttl/2)
	s.cache.OnEvicted(s.evicted)
	return s
}

// Create starts a session for project and returns it.
func (s *SessionService) Create(project string) *Session {
	sess := &Session{
		ID:       uuid.NewString(),
		Project:  project,
		Renderer: s.factory(),
		Created:  time.Now(),
	}
	s.cache.SetDefault(sess.ID, sess)
	s.metrics.SetSessionsActive(s.cache.ItemCount())
	s.log.Debug().Str("session", sess.ID).Str("project", project).Msg("map session created")
	s.bus.Publish(Event{Resource: "maps", Action: "created", ID: sess.ID})
	return sess
}

// Get returns a session and extends its lifetime.
func (s *SessionService) Get(id string) (*Session, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("map session %s: %w", id, ErrNotFound)
	}
	sess := v.(*Session)
	// Replace fails once the session is gone, so a concurrent Delete never
	// sees its closed session put back.
	if err := s.cache.Replace(id, sess, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("map session %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

// Delete ends a session and releases its renderer.
func (s *SessionService) Delete(id string) error {
	v, ok := s.cache.Get(id)
	if !ok {
		return fmt.Errorf("map session %s: %w", id, ErrNotFound)
	}
	s.cache.Delete(id) // runs evicted
	s.bus.Publish(Event{Resource: "maps", Action: "deleted", ID: v.(*Session).ID})
	return nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	return s.cache.ItemCount()
}

// Close ends every session.
func (s *SessionService) Close() {
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}

func (s *SessionService) evicted(id string, v any) {
	sess, ok := v.(*Session)
	if !ok {
		return
	}
	sess.Renderer.Close()
	s.metrics.IncSessionsEvicted()
	s.metrics.SetSessionsActive(s.cache.ItemCount())
	s.log.Debug().Str("session", id).Str("project", sess.Project).Msg("map session closed")
}
