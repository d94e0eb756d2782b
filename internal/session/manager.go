package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/civicvoice/internal/voicecontrol"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	LanguageCode   string    `json:"language_code"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
}

// VoiceFactory builds the voice-control state machine for a new session.
type VoiceFactory func(s Session) *voicecontrol.Session

type entry struct {
	meta  *Session
	voice *voicecontrol.Session
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	sessionByUser     map[string]string
	inactivityTimeout time.Duration
	endedRetention    time.Duration
	newVoice          VoiceFactory
	onExpire          func(*Session)
	onEnd             func(*Session)
}

func NewManager(inactivityTimeout time.Duration, newVoice VoiceFactory) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	if newVoice == nil {
		newVoice = func(s Session) *voicecontrol.Session {
			return voicecontrol.New(voicecontrol.Options{LanguageCode: s.LanguageCode})
		}
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		sessionByUser:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		endedRetention:    10 * time.Minute,
		newVoice:          newVoice,
	}
}

// SetEndedRetention controls how long ended sessions stay queryable.
func (m *Manager) SetEndedRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endedRetention = d
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetEndHook runs after a session is ended explicitly or by expiry.
func (m *Manager) SetEndHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = hook
}

func (m *Manager) Create(userID, languageCode string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		LanguageCode:   languageCode,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	voice := m.newVoice(*s)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &entry{meta: s, voice: voice}
	if userID != "" {
		m.sessionByUser[userID] = s.ID
	}
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.meta), nil
}

// ForUser returns the latest active session of userID.
func (m *Manager) ForUser(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessionByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.meta), nil
}

// Voice returns the live voice session and marks activity.
func (m *Manager) Voice(sessionID string) (*voicecontrol.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if e.meta.Status != StatusActive {
		return nil, ErrEnded
	}
	e.meta.LastActivityAt = time.Now().UTC()
	return e.voice, nil
}

// Touch refreshes the activity clock of an active session.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if e.meta.Status != StatusActive {
		return ErrEnded
	}
	e.meta.LastActivityAt = time.Now().UTC()
	return nil
}

// End marks the session ended and disposes its voice session.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	alreadyEnded := e.meta.Status == StatusEnded
	if !alreadyEnded {
		m.endLocked(e, time.Now().UTC())
	}
	out := clone(e.meta)
	voice := e.voice
	hook := m.onEnd
	m.mu.Unlock()

	if alreadyEnded {
		return out, nil
	}
	voice.Dispose()
	if hook != nil {
		hook(out)
	}
	return out, nil
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
				m.expireInactive()
				m.pruneEnded()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.meta.Status == StatusActive {
			count++
		}
	}
	return count
}

// CloseAll ends every active session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id, e := range m.sessions {
		if e.meta.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_, _ = m.End(id)
	}
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	type expiredEntry struct {
		meta  *Session
		voice *voicecontrol.Session
	}
	var expired []expiredEntry

	m.mu.Lock()
	for _, e := range m.sessions {
		if e.meta.Status != StatusActive {
			continue
		}
		if now.Sub(e.meta.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		m.endLocked(e, now)
		expired = append(expired, expiredEntry{meta: clone(e.meta), voice: e.voice})
	}
	onExpire := m.onExpire
	onEnd := m.onEnd
	m.mu.Unlock()

	for _, e := range expired {
		e.voice.Dispose()
		if onExpire != nil {
			onExpire(e.meta)
		}
		if onEnd != nil {
			onEnd(e.meta)
		}
	}
}

func (m *Manager) pruneEnded() {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.meta.Status != StatusEnded {
			continue
		}
		if now.Sub(e.meta.EndedAt) < m.endedRetention {
			continue
		}
		delete(m.sessions, id)
	}
}

func (m *Manager) endLocked(e *entry, now time.Time) {
	e.meta.Status = StatusEnded
	e.meta.LastActivityAt = now
	e.meta.EndedAt = now
	if e.meta.UserID != "" && m.sessionByUser[e.meta.UserID] == e.meta.ID {
		delete(m.sessionByUser, e.meta.UserID)
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
