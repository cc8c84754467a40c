package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/tcp-http-server/internal/metrics"
)

const (
	// DefaultTimeout is the idle time after which a session expires.
	DefaultTimeout = 30 * time.Minute

	idBytes = 16
)

// Config controls session expiry.
type Config struct {
	// Timeout is the idle time after which a session expires.
	Timeout time.Duration
	// SweepInterval is the period of the background cleanup routine.
	// Zero disables it; expired sessions are then only evicted on lookup.
	SweepInterval time.Duration
}

// Store owns every live session. All methods are safe for concurrent use.
type Store struct {
	sessions sync.Map // id -> *Session
	count    atomic.Int64

	timeout       time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	// Cleanup management
	ctx      context.Context
	cancel   context.CancelFunc
	cleanup  chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store and starts its cleanup routine when
// cfg.SweepInterval is positive. m may be nil.
func NewStore(logger *slog.Logger, cfg Config, m *metrics.Metrics) *Store {
	ctx, cancel := context.WithCancel(context.Background())

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := &Store{
		timeout:       timeout,
		sweepInterval: cfg.SweepInterval,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		cleanup:       make(chan struct{}),
	}

	if s.sweepInterval > 0 {
		go s.startCleanupRoutine()
	} else {
		close(s.cleanup)
	}

	return s
}

// Timeout returns the idle timeout.
func (s *Store) Timeout() time.Duration { return s.timeout }

// Create starts a new session with a fresh random identifier.
func (s *Store) Create() (*Session, error) {
	for {
		id, err := generateSessionID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session id: %w", err)
		}

		session := newSession(id, s.now())
		if _, loaded := s.sessions.LoadOrStore(id, session); loaded {
			continue
		}

		s.metrics.RecordSessionCreated()
		s.metrics.SetActiveSessions(int(s.count.Add(1)))

		s.logger.Debug("Session created", slog.String("session_id", id))
		return session, nil
	}
}

// Get returns the live session for id and refreshes its access time. An
// expired session is evicted and reported as absent.
func (s *Store) Get(id string) (*Session, bool) {
	v, ok := s.sessions.Load(id)
	if !ok {
		return nil, false
	}
	session := v.(*Session)

	now := s.now()
	for {
		if session.tryTouch(now, s.timeout) {
			return session, true
		}
		if session.tryEvict(now, s.timeout) || session.evicted() {
			break
		}
		// Touched by a concurrent lookup with a later clock reading.
	}

	if s.sessions.CompareAndDelete(id, session) {
		s.removed(1)
		s.metrics.RecordSessionsExpired(1)
		s.logger.Debug("Session expired on lookup", slog.String("session_id", id))
	}
	return nil, false
}

// Invalidate removes the session unconditionally. It reports whether a
// session was present.
func (s *Store) Invalidate(id string) bool {
	v, ok := s.sessions.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(*Session).lastAccessed.Store(evictedMark)
	s.removed(1)
	s.logger.Debug("Session invalidated", slog.String("session_id", id))
	return true
}

// Sweep removes every session idle past the timeout and returns how many
// were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0

	s.sessions.Range(func(key, value any) bool {
		session := value.(*Session)
		if session.tryEvict(now, s.timeout) && s.sessions.CompareAndDelete(key, session) {
			removed++
		}
		return true
	})

	if removed > 0 {
		s.removed(removed)
		s.metrics.RecordSessionsExpired(removed)
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	return int(s.count.Load())
}

// Stop halts the cleanup routine. Stored sessions are kept.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.cleanup

		s.logger.Info("Session store stopped",
			slog.Int("remaining_sessions", s.Len()),
		)
	})
}

func (s *Store) removed(n int) {
	s.metrics.SetActiveSessions(int(s.count.Add(-int64(n))))
}

// startCleanupRoutine periodically sweeps expired sessions until Stop.
func (s *Store) startCleanupRoutine() {
	defer close(s.cleanup)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", s.timeout),
		slog.Duration("check_interval", s.sweepInterval),
	)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Session cleanup routine stopping")
			return

		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("Cleaned up expired sessions",
					slog.Int("expired_count", n),
					slog.Int("remaining_sessions", s.Len()),
				)
			}
		}
	}
}

// generateSessionID returns 16 random bytes, hex encoded.
func generateSessionID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
