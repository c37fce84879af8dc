package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// Options configures a Store.
type Options struct {
	// SystemPrompt seeds every new session's history.
	SystemPrompt string
	// MaxSessions caps live sessions; the least recently active one is
	// evicted when a new session would exceed it. 0 means unlimited.
	MaxSessions int
	// IdleTTL is how long a session may sit unused before the sweeper
	// drops it. 0 disables idle eviction.
	IdleTTL time.Duration
	// OnEvict, if set, is called outside the store lock for every session
	// removed by eviction or sweeping.
	OnEvict func(userID string)
	Logger  *zap.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store is the in-memory session registry. All methods are safe for
// concurrent use.
type Store struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

// NewStore returns an empty store.
func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts:     opts,
		log:      opts.Logger.Named("session"),
		sessions: make(map[string]*Session),
		locks:    make(map[string]*userLock),
	}
}

// Get returns a snapshot of userID's session. The returned history is a
// copy; the table is shared with the stored session.
func (s *Store) Get(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	return sess.snapshot(), true
}

// Touch refreshes the session's last-active time.
func (s *Store) Touch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.LastActive = s.opts.Now()
	}
}

// Replace discards any existing session for userID and starts a new one
// holding t and a history of only the system instruction.
func (s *Store) Replace(userID string, t *dataset.Table, sourceName string) *Session {
	now := s.opts.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		SourceName: sourceName,
		Table:      t,
		History:    []Message{{Role: RoleSystem, Content: s.opts.SystemPrompt}},
		CreatedAt:  now,
		LastActive: now,
	}
	s.mu.Lock()
	_, existed := s.sessions[userID]
	s.sessions[userID] = sess
	var evicted []string
	if s.opts.MaxSessions > 0 {
		evicted = s.evictOverflowLocked(userID)
	}
	out := sess.snapshot()
	s.mu.Unlock()

	s.log.Info("session replaced",
		zap.String("user_id", userID),
		zap.String("session_id", sess.ID),
		zap.String("source", sourceName),
		zap.Int("rows", t.NumRows()),
		zap.Int("cols", t.NumCols()),
		zap.Bool("existed", existed))
	s.notifyEvicted(evicted, "capacity")
	return out
}

// evictOverflowLocked drops least recently active sessions, never keep,
// until the store is within MaxSessions.
func (s *Store) evictOverflowLocked(keep string) []string {
	over := len(s.sessions) - s.opts.MaxSessions
	if over <= 0 {
		return nil
	}
	type entry struct {
		id   string
		last time.Time
	}
	entries := make([]entry, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id != keep {
			entries = append(entries, entry{id, sess.LastActive})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].last.Equal(entries[j].last) {
			return entries[i].id < entries[j].id
		}
		return entries[i].last.Before(entries[j].last)
	})
	var out []string
	for _, e := range entries[:over] {
		delete(s.sessions, e.id)
		out = append(out, e.id)
	}
	return out
}

// AppendTurn appends a user message and the assistant reply, in that order,
// to userID's session. It returns ErrNoSession when the live session is not
// sessionID, so a turn that outlived a replace or eviction is dropped.
func (s *Store) AppendTurn(userID, sessionID string, userMsg, assistantMsg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.ID != sessionID {
		return fmt.Errorf("append turn for %s: %w", userID, ErrNoSession)
	}
	sess.History = append(sess.History, userMsg, assistantMsg)
	sess.Turns++
	sess.LastActive = s.opts.Now()
	return nil
}

// Evict removes userID's session. It reports whether one existed.
func (s *Store) Evict(userID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if ok {
		s.notifyEvicted([]string{userID}, "explicit")
	}
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Lock serializes turns for one user. Waiters are served in arrival order.
// Different users never share a lock. The returned unlock is idempotent.
func (s *Store) Lock(ctx context.Context, userID string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		s.releaseRef(userID, l)
		return nil, fmt.Errorf("wait for %s turn lock: %w", userID, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			s.releaseRef(userID, l)
		})
	}, nil
}

func (s *Store) releaseRef(userID string, l *userLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 && s.locks[userID] == l {
		delete(s.locks, userID)
	}
}

func (s *Store) notifyEvicted(ids []string, reason string) {
	for _, id := range ids {
		s.log.Info("session evicted", zap.String("user_id", id), zap.String("reason", reason))
		if s.opts.OnEvict != nil {
			s.opts.OnEvict(id)
		}
	}
}
