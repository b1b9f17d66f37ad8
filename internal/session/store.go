// Package session holds the in-memory operator sessions: who is signed in,
// with which role, and how many sales each made since signing in. Sessions
// are a convenience cache; period files stay the source of truth for reports.
package session

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"sales/internal/cache"
	"sales/internal/core"
	"sales/internal/log"
	"sales/internal/metrics"
)

// Identity is an operator together with the role granted at sign-in.
type Identity struct {
	core.Operator
	Role Role
}

func (i Identity) IsHead() bool { return i.Role == RoleHead }

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	Identity
	StartedAt time.Time
	Tally     map[string]int64
	Total     int64
}

type session struct {
	identity  Identity
	startedAt time.Time

	mu    sync.Mutex
	tally map[string]int64
}

// Store caches sessions keyed by operator ID.
type Store struct {
	access   *Access
	sessions *cache.LRUCache[*session]
	now      func() time.Time
	logger   *log.Logger
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentSession) }
}

// WithClock replaces the time source used for expiry and start times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store holding at most maxSize sessions, each expiring
// after ttl without activity.
func NewStore(access *Access, maxSize int, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		access: access,
		now:    time.Now,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = cache.NewSlidingLRUCache[*session](maxSize, ttl).WithClock(s.now)
	return s
}

// Establish signs an operator in. An existing session keeps its tally but
// takes the newest username and full name.
func (s *Store) Establish(ctx context.Context, op core.Operator) (Identity, error) {
	if err := op.Validate(); err != nil {
		return Identity{}, err
	}
	role, ok := s.access.RoleFor(op.Username)
	if !ok {
		s.logger.WarnContext(ctx, "Sign-in refused",
			log.FieldOperatorID, op.ID.String(),
			log.FieldUsername, op.Username)
		return Identity{}, fmt.Errorf("operator %s (%q): %w", op.ID, op.Username, core.ErrAccessDenied)
	}

	id := Identity{Operator: op, Role: role}
	key := op.ID.String()
	if existing, ok := s.sessions.Get(key); ok {
		existing.mu.Lock()
		existing.identity = id
		existing.mu.Unlock()
		return id, nil
	}

	s.sessions.Set(key, &session{
		identity:  id,
		startedAt: s.now(),
		tally:     make(map[string]int64),
	})
	metrics.ActiveSessions.Set(float64(s.sessions.Size()))
	s.logger.InfoContext(ctx, "Session established",
		log.FieldOperatorID, key,
		log.FieldUsername, op.Username,
		"role", string(role))
	return id, nil
}

func (s *Store) lookup(id core.OperatorID) (*session, error) {
	sess, ok := s.sessions.Get(id.String())
	if !ok {
		return nil, fmt.Errorf("operator %s: %w", id, core.ErrStaleSession)
	}
	return sess, nil
}

// Get returns the identity of a signed-in operator or ErrStaleSession.
func (s *Store) Get(id core.OperatorID) (Identity, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Identity{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.identity, nil
}

// Tally adds one sale of key to the session and returns the session count for key.
func (s *Store) Tally(id core.OperatorID, key string) (int64, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.tally[key]++
	return sess.tally[key], nil
}

func (s *Store) Snapshot(id core.OperatorID) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	snap := Snapshot{
		Identity:  sess.identity,
		StartedAt: sess.startedAt,
		Tally:     maps.Clone(sess.tally),
	}
	for _, n := range sess.tally {
		snap.Total += n
	}
	return snap, nil
}

// End drops a session. Ending an unknown session is not an error.
func (s *Store) End(ctx context.Context, id core.OperatorID) {
	s.sessions.Delete(id.String())
	metrics.ActiveSessions.Set(float64(s.sessions.Size()))
	s.logger.InfoContext(ctx, "Session ended", log.FieldOperatorID, id.String())
}

// CleanExpired evicts idle sessions; it satisfies cache.Cleaner.
func (s *Store) CleanExpired() int {
	n := s.sessions.CleanExpired()
	metrics.ActiveSessions.Set(float64(s.sessions.Size()))
	return n
}

func (s *Store) Len() int { return s.sessions.Size() }
