package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

// SessionChange summarizes the store after a mutation.
type SessionChange struct {
	Known  int
	Active domain.Topic
}

// SessionStore holds the sessions reported by the wallet-connection transport and the single active one.
type SessionStore struct {
	clock      ports.Clock
	logger     *slog.Logger
	metrics    ports.Metrics
	disconnect batchDisconnector

	mu        sync.RWMutex
	sessions  map[domain.Topic]domain.Session
	order     []domain.Topic
	active    domain.Topic
	cursor    int64
	listeners []func(SessionChange)
}

func NewSessionStore(transport ports.WalletTransport, clock ports.Clock, opts ...Option) *SessionStore {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	cfg := newSettings(opts)

	return &SessionStore{
		clock:   clock,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		disconnect: batchDisconnector{
			transport: transport,
			options:   cfg.batch,
			tracer:    cfg.tracer,
			metrics:   cfg.metrics,
		},
		sessions: map[domain.Topic]domain.Session{},
	}
}

// OnChange registers a listener invoked after every mutation, outside the store lock.
func (s *SessionStore) OnChange(fn func(SessionChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// OnSessionEstablished inserts the session and makes it active when nothing is.
// A topic that is already known is left untouched.
func (s *SessionStore) OnSessionEstablished(session domain.Session) {
	if err := session.Validate(); err != nil {
		s.logger.Warn("ignoring invalid established session", "topic", string(session.Topic), "error", err)
		return
	}

	s.mu.Lock()
	if _, ok := s.sessions[session.Topic]; ok {
		s.mu.Unlock()
		return
	}
	s.insertLocked(session)
	change := s.changeLocked()
	s.mu.Unlock()

	s.logger.Debug("session established", "topic", string(session.Topic))
	s.notify(change)
}

// OnSessionUpdated replaces the stored session. An unknown topic is treated as established.
func (s *SessionStore) OnSessionUpdated(session domain.Session) {
	if err := session.Validate(); err != nil {
		s.logger.Warn("ignoring invalid updated session", "topic", string(session.Topic), "error", err)
		return
	}

	s.mu.Lock()
	if _, ok := s.sessions[session.Topic]; ok {
		s.sessions[session.Topic] = session.Clone()
	} else {
		s.logger.Debug("update for unknown session, inserting", "topic", string(session.Topic))
		s.insertLocked(session)
	}
	change := s.changeLocked()
	s.mu.Unlock()

	s.notify(change)
}

// OnSessionDeleted removes the session. Deleting the active session leaves no session active.
func (s *SessionStore) OnSessionDeleted(topic domain.Topic) {
	s.mu.Lock()
	if !s.deleteLocked(topic) {
		s.mu.Unlock()
		return
	}
	change := s.changeLocked()
	s.mu.Unlock()

	s.logger.Debug("session deleted", "topic", string(topic))
	s.notify(change)
}

// Apply routes one transport event to the matching lifecycle handler and advances the cursor.
func (s *SessionStore) Apply(event domain.SessionEvent) error {
	switch event.Kind {
	case domain.SessionEstablished:
		s.OnSessionEstablished(event.Session)
	case domain.SessionUpdated:
		s.OnSessionUpdated(event.Session)
	case domain.SessionDeleted:
		topic := event.Topic
		if topic == "" {
			topic = event.Session.Topic
		}
		s.OnSessionDeleted(topic)
	default:
		return fmt.Errorf("apply session event %d: unsupported kind %q", event.Seq, event.Kind)
	}

	s.mu.Lock()
	if event.Seq > s.cursor {
		s.cursor = event.Seq
	}
	s.mu.Unlock()

	return nil
}

func (s *SessionStore) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursor
}

func (s *SessionStore) ListSessions() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Session, 0, len(s.order))
	for _, topic := range s.order {
		out = append(out, s.sessions[topic].Clone())
	}

	return out
}

func (s *SessionStore) Get(topic domain.Topic) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[topic]
	if !ok {
		return domain.Session{}, false
	}

	return session.Clone(), true
}

func (s *SessionStore) Active() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == "" {
		return domain.Session{}, false
	}
	session, ok := s.sessions[s.active]
	if !ok {
		return domain.Session{}, false
	}

	return session.Clone(), true
}

// SetActive promotes a known session.
func (s *SessionStore) SetActive(topic domain.Topic) error {
	s.mu.Lock()
	if _, ok := s.sessions[topic]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("set active session %s: %w", topic, domain.ErrSessionNotFound)
	}
	s.active = topic
	change := s.changeLocked()
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *SessionStore) IsExpired(session domain.Session) bool {
	return session.IsExpired(s.clock.Now())
}

func (s *SessionStore) ListExpired() []domain.Session {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Session, 0)
	for _, topic := range s.order {
		session := s.sessions[topic]
		if session.IsExpired(now) {
			out = append(out, session.Clone())
		}
	}

	return out
}

// DisconnectExpired disconnects every expired session and removes it locally.
// An expired session is removed even if its remote disconnect failed; the failure is still reported.
func (s *SessionStore) DisconnectExpired(ctx context.Context) (DisconnectReport, error) {
	expired := s.ListExpired()
	if len(expired) == 0 {
		return DisconnectReport{}, nil
	}

	topics := make([]domain.Topic, 0, len(expired))
	for _, session := range expired {
		topics = append(topics, session.Topic)
	}

	report := s.disconnect.run(ctx, "expired", topics)
	for _, result := range report.Results {
		if result.Err != nil {
			s.logger.Warn("disconnect expired session failed", "topic", string(result.Topic), "error", result.Err)
		}
		s.OnSessionDeleted(result.Topic)
	}

	return report, report.Err()
}

// Snapshot returns a copy of the store suitable for persistence.
func (s *SessionStore) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := domain.SessionSnapshot{
		Sessions: make([]domain.Session, 0, len(s.order)),
		Active:   s.active,
		Cursor:   s.cursor,
		SavedAt:  s.clock.Now(),
	}
	for _, topic := range s.order {
		snapshot.Sessions = append(snapshot.Sessions, s.sessions[topic].Clone())
	}

	return snapshot
}

// Restore replaces the store contents. Invalid sessions and a dangling active topic are dropped.
func (s *SessionStore) Restore(snapshot domain.SessionSnapshot) {
	s.mu.Lock()
	s.sessions = map[domain.Topic]domain.Session{}
	s.order = nil
	s.active = ""
	for _, session := range snapshot.Sessions {
		if err := session.Validate(); err != nil {
			s.logger.Warn("dropping invalid persisted session", "topic", string(session.Topic), "error", err)
			continue
		}
		if _, ok := s.sessions[session.Topic]; ok {
			continue
		}
		s.sessions[session.Topic] = session.Clone()
		s.order = append(s.order, session.Topic)
	}
	if _, ok := s.sessions[snapshot.Active]; ok {
		s.active = snapshot.Active
	}
	s.cursor = snapshot.Cursor
	change := s.changeLocked()
	s.mu.Unlock()

	s.notify(change)
}

func (s *SessionStore) removeAfterDisconnect(report DisconnectReport) {
	for _, topic := range report.Succeeded() {
		s.OnSessionDeleted(topic)
	}
}

func (s *SessionStore) insertLocked(session domain.Session) {
	s.sessions[session.Topic] = session.Clone()
	s.order = append(s.order, session.Topic)
	if s.active == "" {
		s.active = session.Topic
	}
}

func (s *SessionStore) deleteLocked(topic domain.Topic) bool {
	if _, ok := s.sessions[topic]; !ok {
		return false
	}
	delete(s.sessions, topic)
	for i, known := range s.order {
		if known == topic {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == topic {
		s.active = ""
	}

	return true
}

func (s *SessionStore) changeLocked() SessionChange {
	return SessionChange{Known: len(s.sessions), Active: s.active}
}

func (s *SessionStore) notify(change SessionChange) {
	s.metrics.SessionsObserved(change.Known, change.Active != "")

	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}
