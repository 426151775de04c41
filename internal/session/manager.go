// Package session keeps the ephemeral per-learner turn state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gidwell/jiro/internal/apperr"
)

// State is the turn state of a session.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingReply     State = "awaiting_reply"
	StateAwaitingSynthesis State = "awaiting_synthesis"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrTurnMismatch is returned when a transition names a turn that is not
	// the session's in-flight turn.
	ErrTurnMismatch = errors.New("turn is not in flight")
)

// Snapshot is a copy of a session's state.
type Snapshot struct {
	LearnerID      int64
	State          State
	Mode           string
	Version        uint64
	TurnID         string
	TurnStartedAt  time.Time
	Committing     bool
	LastReply      string
	StartedAt      time.Time
	LastActivityAt time.Time
}

type session struct {
	Snapshot
	cancel  context.CancelFunc
	turnCtx context.Context
}

// Manager owns every live session. Sessions are keyed by learner.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[int64]*session
	idleTimeout time.Duration
	now         func() time.Time
	onExpire    func(Snapshot)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(idleTimeout time.Duration, opts ...Option) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	m := &Manager{
		sessions:    make(map[int64]*session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetExpireHook registers a callback run after a session expired.
func (m *Manager) SetExpireHook(hook func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Ensure returns the learner's session, creating an idle one in mode when
// there is none.
func (m *Manager) Ensure(learnerID int64, mode string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[learnerID]; ok {
		return s.Snapshot
	}
	now := m.now().UTC()
	s := &session{Snapshot: Snapshot{
		LearnerID:      learnerID,
		State:          StateIdle,
		Mode:           mode,
		Version:        1,
		StartedAt:      now,
		LastActivityAt: now,
	}}
	m.sessions[learnerID] = s
	return s.Snapshot
}

func (m *Manager) Get(learnerID int64) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[learnerID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.Snapshot, nil
}

// BeginTurn moves an idle session to AwaitingReply. The returned context is
// cancelled when the session expires or is torn down mid turn.
func (m *Manager) BeginTurn(ctx context.Context, learnerID int64, version uint64) (context.Context, Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[learnerID]
	if !ok {
		return nil, Snapshot{}, ErrNotFound
	}
	if s.State != StateIdle {
		return nil, s.Snapshot, &apperr.SessionBusyError{LearnerID: learnerID, State: string(s.State)}
	}
	if s.Version != version {
		return nil, s.Snapshot, &apperr.StaleSessionError{LearnerID: learnerID, Expected: version, Actual: s.Version}
	}

	turnCtx, cancel := context.WithCancel(ctx)
	now := m.now().UTC()
	s.State = StateAwaitingReply
	s.TurnID = uuid.NewString()
	s.TurnStartedAt = now
	s.Committing = false
	s.LastActivityAt = now
	s.Version++
	s.turnCtx = turnCtx
	s.cancel = cancel
	return turnCtx, s.Snapshot, nil
}

// AwaitSynthesis records that the reply text is ready.
func (m *Manager) AwaitSynthesis(learnerID int64, turnID string, version uint64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.inFlight(learnerID, turnID, version)
	if err != nil {
		return Snapshot{}, err
	}
	if s.State != StateAwaitingReply {
		return s.Snapshot, fmt.Errorf("await synthesis from %s: %w", s.State, ErrTurnMismatch)
	}
	s.State = StateAwaitingSynthesis
	s.LastActivityAt = m.now().UTC()
	s.Version++
	return s.Snapshot, nil
}

// BeginCommit marks the turn as persisting. From here on the janitor no
// longer cancels it. It fails when the turn was already cancelled.
func (m *Manager) BeginCommit(learnerID int64, turnID string, version uint64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.inFlight(learnerID, turnID, version)
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.turnCtx.Err(); err != nil {
		return s.Snapshot, err
	}
	s.Committing = true
	s.LastActivityAt = m.now().UTC()
	return s.Snapshot, nil
}

// FinishTurn returns the session to Idle after the turn was persisted.
func (m *Manager) FinishTurn(learnerID int64, turnID string, reply string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[learnerID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if s.TurnID != turnID {
		return s.Snapshot, ErrTurnMismatch
	}
	s.LastReply = reply
	m.resetTurn(s)
	return s.Snapshot, nil
}

// AbortTurn returns the session to Idle after a failed turn.
func (m *Manager) AbortTurn(learnerID int64, turnID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[learnerID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if s.TurnID != turnID {
		return s.Snapshot, ErrTurnMismatch
	}
	m.resetTurn(s)
	return s.Snapshot, nil
}

func (m *Manager) resetTurn(s *session) {
	if s.cancel != nil {
		s.cancel()
	}
	s.State = StateIdle
	s.TurnID = ""
	s.TurnStartedAt = time.Time{}
	s.Committing = false
	s.turnCtx = nil
	s.cancel = nil
	s.LastActivityAt = m.now().UTC()
	s.Version++
}

// SetMode changes the mode. Mode is independent of the turn state, so it
// may change while a turn is in flight.
func (m *Manager) SetMode(learnerID int64, mode string, version uint64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[learnerID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if s.Version != version {
		return s.Snapshot, &apperr.StaleSessionError{LearnerID: learnerID, Expected: version, Actual: s.Version}
	}
	s.Mode = mode
	s.LastActivityAt = m.now().UTC()
	s.Version++
	return s.Snapshot, nil
}

// Teardown drops the session and cancels its in-flight turn.
func (m *Manager) Teardown(learnerID int64) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[learnerID]
	if !ok {
		return Snapshot{}, false
	}
	if s.cancel != nil {
		s.cancel()
	}
	delete(m.sessions, learnerID)
	return s.Snapshot, true
}

func (m *Manager) inFlight(learnerID int64, turnID string, version uint64) (*session, error) {
	s, ok := m.sessions[learnerID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.TurnID == "" || s.TurnID != turnID {
		return nil, ErrTurnMismatch
	}
	if s.Version != version {
		return nil, &apperr.StaleSessionError{LearnerID: learnerID, Expected: version, Actual: s.Version}
	}
	return s, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ExpireIdle()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ExpireIdle tears down every session inactive for longer than the idle
// timeout. A turn in flight is cancelled unless it is committing; committing
// sessions are left for the next pass.
func (m *Manager) ExpireIdle() int {
	now := m.now().UTC()
	var expired []Snapshot

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Committing {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.idleTimeout {
			continue
		}
		if s.cancel != nil {
			s.cancel()
		}
		delete(m.sessions, id)
		expired = append(expired, s.Snapshot)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		slog.Default().Debug("session expired",
			"learner_id", s.LearnerID,
			"state", s.State,
			"turn_id", s.TurnID)
		if hook != nil {
			hook(s)
		}
	}
	return len(expired)
}
