package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"selfintro-bot/internal/domain"
)

type memoryRecord struct {
	session domain.Session
	expires time.Time
}

// Memory is an in-process session store for local runs and tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		records: make(map[string]memoryRecord),
		ttl:     normalizeTTL(ttl),
		now:     time.Now,
	}
}

func (m *Memory) Load(_ context.Context, userID string) (domain.Session, error) {
	if userID == "" {
		return domain.Session{}, errors.New("repository: Load: user id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[userID]
	if !ok {
		return domain.NewSession(userID), nil
	}
	if !rec.expires.After(m.now()) {
		fresh := domain.NewSession(userID)
		fresh.Version = rec.session.Version
		return fresh, nil
	}
	return rec.session.Clone(), nil
}

func (m *Memory) Save(_ context.Context, sess domain.Session) (domain.Session, error) {
	if sess.UserID == "" {
		return domain.Session{}, errors.New("repository: Save: user id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if rec, ok := m.records[sess.UserID]; ok {
		stored = rec.session.Version
	}
	if stored != sess.Version {
		return domain.Session{}, ErrConflict
	}

	now := m.now()
	next := sess.Clone()
	next.Version = sess.Version + 1
	next.UpdatedAt = now.UTC()
	m.records[sess.UserID] = memoryRecord{session: next.Clone(), expires: now.Add(m.ttl)}
	return next, nil
}

func (m *Memory) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.records, userID)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, rec := range m.records {
		if !rec.expires.After(now) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
