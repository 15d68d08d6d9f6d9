package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voicechat/pkg/metrics"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 30 * time.Minute

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session: not found")

// Store holds live sessions in memory. Nothing is persisted.
type Store struct {
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL sets the idle eviction timeout.
func WithTTL(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store whose sessions are built by factory.
func NewStore(factory Factory, opts ...StoreOption) *Store {
	s := &Store{
		factory:  factory,
		ttl:      DefaultTTL,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session.store")
	return s
}

// Create starts a new session.
func (s *Store) Create() *Session {
	id := uuid.NewString()
	sess := newSession(id, s.factory, s.logger)

	s.mu.Lock()
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionOpened()
	s.logger.Info("session created", "session", id, "sessions", n)
	return sess
}

// Get returns a live session and marks it active.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	sess.touch()
	return sess, nil
}

// Delete discards a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close(sess, "deleted")
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL. Sessions with a
// turn in flight are kept. It returns how many were evicted.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	var evicted []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.Busy() || sess.idleSince().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, sess)
	}
	s.mu.Unlock()

	for _, sess := range evicted {
		s.close(sess, "idle")
	}
	return len(evicted)
}

// Run sweeps periodically until ctx is cancelled, then closes every
// remaining session.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}

// Close discards every session.
func (s *Store) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		s.close(sess, "shutdown")
	}
}

func (s *Store) close(sess *Session, reason string) {
	sess.Close()
	metrics.SessionClosed()
	s.logger.Info("session closed", "session", sess.ID(), "reason", reason)
}
