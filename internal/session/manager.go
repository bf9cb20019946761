package session

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRingCapacity = 500
	defaultEventBufCap  = 1024
	defaultCols         = 80
	defaultRows         = 24
	bannerDelay         = 200 * time.Millisecond
)

var (
	// ErrSlotExists is returned when a live session already holds the
	// requested (token, terminal) pair.
	ErrSlotExists = errors.New("terminal slot already exists")
	// ErrCapacityExceeded is returned when creating a session would exceed
	// the per-token or global cap.
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	// ErrSpawnFailure wraps a shell process that could not start.
	ErrSpawnFailure = errors.New("failed to spawn shell")
)

// Limits bounds the session table and drives reclamation.
type Limits struct {
	MaxPerToken      int
	MaxGlobal        int
	IdleTimeout      time.Duration
	AggressiveIdle   time.Duration
	PerSessionBudget int64 // estimated heap bytes per session
}

// DefaultLimits mirrors the shipped configuration.
func DefaultLimits() Limits {
	return Limits{
		MaxPerToken:      8,
		MaxGlobal:        50,
		IdleTimeout:      30 * time.Minute,
		AggressiveIdle:   30 * time.Minute,
		PerSessionBudget: 10 << 20,
	}
}

// Manager owns the set of live terminal sessions, keyed by (token, terminal).
// All mutation goes through its methods; callers never touch a process handle.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession
	limits   Limits
	spawn    Spawner
	events   chan Event
}

type managedSession struct {
	sess *Session
	proc Proc
	ring *RingBuffer
}

func key(token, terminalID string) string {
	return token + "/" + terminalID
}

// NewManager creates a session manager using the given spawner.
func NewManager(limits Limits, spawn Spawner) *Manager {
	return &Manager{
		sessions: make(map[string]*managedSession),
		limits:   limits,
		spawn:    spawn,
		events:   make(chan Event, defaultEventBufCap),
	}
}

// Events is the single ordered stream of tagged session events. Within one
// (token, terminal) the order matches what the process produced; across
// slots no order is guaranteed.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Create spawns a shell for (token, terminalID). An empty terminalID gets a
// generated one. Capacity is checked and the slot registered under one lock
// acquisition, so concurrent creates cannot exceed the caps.
func (m *Manager) Create(token, terminalID, name, color string) (*Session, error) {
	if terminalID == "" {
		terminalID = uuid.New().String()
	}
	if name == "" {
		name = "Terminal"
	}
	if color == "" {
		color = "#00ff00"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(token, terminalID)
	if _, exists := m.sessions[k]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSlotExists, terminalID)
	}

	perToken := 0
	for _, ms := range m.sessions {
		if ms.sess.Token == token {
			perToken++
		}
	}
	if perToken >= m.limits.MaxPerToken {
		return nil, fmt.Errorf("%w: token limit %d reached", ErrCapacityExceeded, m.limits.MaxPerToken)
	}
	if len(m.sessions) >= m.limits.MaxGlobal {
		return nil, fmt.Errorf("%w: global limit %d reached", ErrCapacityExceeded, m.limits.MaxGlobal)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:           uuid.New().String(),
		Token:        token,
		TerminalID:   terminalID,
		Name:         name,
		Color:        color,
		IsActive:     true,
		CreatedAt:    now,
		LastActivity: now,
		Cols:         defaultCols,
		Rows:         defaultRows,
	}

	ms := &managedSession{
		sess: sess,
		ring: NewRingBuffer(defaultRingCapacity),
	}

	proc, err := m.spawn(defaultCols, defaultRows,
		func(data []byte) { m.onData(k, string(data)) },
		func(code int) { m.onExit(k, code) },
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}
	ms.proc = proc
	m.sessions[k] = ms

	m.emit(Event{
		Type:       EventCreated,
		Token:      token,
		TerminalID: terminalID,
		Timestamp:  now,
	})

	// Greet shortly after create so the client sees the slot is alive even
	// before the shell prints its prompt.
	time.AfterFunc(bannerDelay, func() {
		banner := fmt.Sprintf("\x1b[32m%s ready\x1b[0m\r\n", name)
		m.onData(k, banner)
	})

	out := *sess
	return &out, nil
}

// onData records and forwards one output chunk for a slot.
func (m *Manager) onData(k, data string) {
	m.mu.Lock()
	ms, ok := m.sessions[k]
	if !ok {
		m.mu.Unlock()
		return
	}
	ms.sess.LastActivity = time.Now().UTC()
	token, terminalID := ms.sess.Token, ms.sess.TerminalID
	m.mu.Unlock()

	event := Event{
		Type:       EventOutput,
		Token:      token,
		TerminalID: terminalID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
	ms.ring.Write(event)
	m.emit(event)
}

// onExit marks the slot inactive and raises an exit event. The record stays
// resident (queryable as inactive) until an explicit terminate or a sweep
// removes it, so a client can still read the exit notification.
func (m *Manager) onExit(k string, code int) {
	m.mu.Lock()
	ms, ok := m.sessions[k]
	if !ok {
		m.mu.Unlock()
		return
	}
	ms.sess.IsActive = false
	token, terminalID := ms.sess.Token, ms.sess.TerminalID
	m.mu.Unlock()

	event := Event{
		Type:       EventExit,
		Token:      token,
		TerminalID: terminalID,
		ExitCode:   code,
		Timestamp:  time.Now().UTC(),
	}
	ms.ring.Write(event)
	m.emit(event)
}

func (m *Manager) emit(event Event) {
	select {
	case m.events <- event:
	default:
		// Consumer stalled; dropping beats wedging every session.
		log.Printf("session: event buffer full, dropped %s for %s/%s", event.Type, event.Token, event.TerminalID)
	}
}

// Write forwards input bytes to a live slot. Returns false when no live
// session matches.
func (m *Manager) Write(token, terminalID string, data []byte) bool {
	m.mu.Lock()
	ms, ok := m.sessions[key(token, terminalID)]
	if !ok || !ms.sess.IsActive {
		m.mu.Unlock()
		return false
	}
	ms.sess.LastActivity = time.Now().UTC()
	proc := ms.proc
	m.mu.Unlock()

	if _, err := proc.Write(data); err != nil {
		log.Printf("session: write to %s/%s: %v", token, terminalID, err)
		return false
	}
	return true
}

// Resize forwards a size change to a live slot.
func (m *Manager) Resize(token, terminalID string, cols, rows int) bool {
	m.mu.Lock()
	ms, ok := m.sessions[key(token, terminalID)]
	if !ok || !ms.sess.IsActive {
		m.mu.Unlock()
		return false
	}
	ms.sess.Cols = cols
	ms.sess.Rows = rows
	ms.sess.LastActivity = time.Now().UTC()
	proc := ms.proc
	m.mu.Unlock()

	if err := proc.Resize(cols, rows); err != nil {
		log.Printf("session: resize %s/%s: %v", token, terminalID, err)
		return false
	}
	return true
}

// Terminate kills and removes exactly one slot.
func (m *Manager) Terminate(token, terminalID string) bool {
	m.mu.Lock()
	k := key(token, terminalID)
	ms, ok := m.sessions[k]
	if ok {
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if err := ms.proc.Kill(); err != nil {
		log.Printf("session: kill %s/%s: %v", token, terminalID, err)
	}
	return true
}

// TerminateAll kills and removes every slot under a token. Returns true iff
// at least one session was removed.
func (m *Manager) TerminateAll(token string) bool {
	m.mu.Lock()
	var removed []*managedSession
	for k, ms := range m.sessions {
		if ms.sess.Token == token {
			removed = append(removed, ms)
			delete(m.sessions, k)
		}
	}
	m.mu.Unlock()

	for _, ms := range removed {
		if err := ms.proc.Kill(); err != nil {
			log.Printf("session: kill %s/%s: %v", ms.sess.Token, ms.sess.TerminalID, err)
		}
	}
	return len(removed) > 0
}

// ListByToken returns every resident session for a token, live or exited.
func (m *Manager) ListByToken(token string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Session
	for _, ms := range m.sessions {
		if ms.sess.Token == token {
			out := *ms.sess
			result = append(result, &out)
		}
	}
	return result
}

// ListActive returns every resident session whose process has not exited.
func (m *Manager) ListActive() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Session
	for _, ms := range m.sessions {
		if ms.sess.IsActive {
			out := *ms.sess
			result = append(result, &out)
		}
	}
	return result
}

// Replay returns the buffered recent events for a slot.
func (m *Manager) Replay(token, terminalID string) []Event {
	m.mu.RLock()
	ms, ok := m.sessions[key(token, terminalID)]
	m.mu.RUnlock()

	if !ok {
		return nil
	}
	return ms.ring.ReadAll()
}

// ReapIdle removes every session whose last activity is older than the
// threshold and returns how many were removed.
func (m *Manager) ReapIdle(threshold time.Duration) int {
	cutoff := time.Now().UTC().Add(-threshold)

	m.mu.Lock()
	var reaped []*managedSession
	for k, ms := range m.sessions {
		if ms.sess.LastActivity.Before(cutoff) {
			reaped = append(reaped, ms)
			delete(m.sessions, k)
		}
	}
	m.mu.Unlock()

	for _, ms := range reaped {
		if err := ms.proc.Kill(); err != nil {
			log.Printf("session: reap %s/%s: %v", ms.sess.Token, ms.sess.TerminalID, err)
		}
	}
	if len(reaped) > 0 {
		log.Printf("session: reaped %d idle session(s)", len(reaped))
	}
	return len(reaped)
}

// CheckMemoryPressure runs the aggressive sweep when heap usage crosses 80%
// of the estimated ceiling MaxGlobal × PerSessionBudget.
func (m *Manager) CheckMemoryPressure() int {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	ceiling := uint64(m.limits.MaxGlobal) * uint64(m.limits.PerSessionBudget)
	if ceiling == 0 || stats.HeapAlloc < ceiling*8/10 {
		return 0
	}
	log.Printf("session: heap %d over 80%% of ceiling %d, aggressive sweep", stats.HeapAlloc, ceiling)
	return m.ReapIdle(m.limits.AggressiveIdle)
}

// Shutdown kills every resident session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*managedSession, 0, len(m.sessions))
	for k, ms := range m.sessions {
		all = append(all, ms)
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	for _, ms := range all {
		ms.proc.Kill()
	}
}
