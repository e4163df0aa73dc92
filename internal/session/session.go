// Package session holds the in-progress intake profile of every user.
//
// Sessions live in process memory only. Each user has an exclusive section that
// callers hold around the read-modify-write of a single message, so two users never
// block each other and one user's messages are applied one at a time.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

// DefaultTTL is how long an untouched session survives before the janitor evicts it.
const DefaultTTL = 24 * time.Hour

// ErrUnknownSession is returned when updating a user that has no active session.
var ErrUnknownSession = errors.New("unknown session")

// Session is one user's live profile.
type Session struct {
	ID        string
	UserID    string
	Profile   models.Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Opts holds configuration options for the Store.
type Opts struct {
	TTL   time.Duration    // idle lifetime; zero disables eviction
	Clock func() time.Time // time source, overridable in tests
}

// Option defines a configuration option for the Store.
type Option func(*Opts)

// WithTTL sets the idle lifetime of a session. Zero keeps sessions forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Store is a process-wide table of sessions keyed by user identifier.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	lockMu sync.Mutex
	locks  map[string]*userLock

	ttl   time.Duration
	clock func() time.Time
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	cfg := Opts{TTL: DefaultTTL, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	slog.Debug("session.NewStore: creating session store", "ttl", cfg.TTL)
	return &Store{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*userLock),
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
	}
}

// Lock enters userID's exclusive section and returns the function that leaves it.
func (s *Store) Lock(userID string) (unlock func()) {
	s.lockMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.lockMu.Unlock()
	}
}

// GetOrCreate returns a snapshot of userID's profile, creating an empty session on
// first access. created reports whether the session was just created.
func (s *Store) GetOrCreate(userID string) (profile models.Profile, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if sess, ok := s.sessions[userID]; ok {
		sess.UpdatedAt = now
		return sess.Profile, false
	}

	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Profile:   *models.NewProfile(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[userID] = sess
	slog.Debug("session.Store.GetOrCreate: session created", "userID", userID, "sessionID", sess.ID)
	return sess.Profile, true
}

// Get returns a snapshot of userID's profile if a session exists.
func (s *Store) Get(userID string) (models.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return models.Profile{}, false
	}
	return sess.Profile, true
}

// SessionID returns the identifier of userID's current session, or "" if none exists.
func (s *Store) SessionID(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess.ID
	}
	return ""
}

// Update applies fn to userID's profile. The change is discarded if fn returns an error.
func (s *Store) Update(userID string, fn func(p *models.Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrUnknownSession
	}
	p := sess.Profile
	if err := fn(&p); err != nil {
		return err
	}
	sess.Profile = p
	sess.UpdatedAt = s.clock()
	return nil
}

// IsComplete reports whether userID's goal has been accepted.
func (s *Store) IsComplete(userID string) bool {
	p, ok := s.Get(userID)
	return ok && p.IsComplete()
}

// Destroy removes userID's session. It is a no-op when none exists.
func (s *Store) Destroy(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; ok {
		delete(s.sessions, userID)
		slog.Debug("session.Store.Destroy: session removed", "userID", userID)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("session.Store.Sweep: evicted idle sessions", "count", removed, "ttl", s.ttl)
	}
	return removed
}

// StartJanitor sweeps idle sessions every interval until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		slog.Debug("session.Store.StartJanitor: eviction disabled", "ttl", s.ttl, "interval", interval)
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(s.clock())
			case <-ctx.Done():
				slog.Debug("session.Store.StartJanitor: stopping")
				return
			}
		}
	}()
}
