package desk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classdesk/internal/attendance"
	"classdesk/internal/metrics"
)

// ErrForbidden is returned when a desk is used by someone other than its owner.
var ErrForbidden = errors.New("desk belongs to another user")

type entry struct {
	engine   *attendance.Engine
	owner    string
	schoolID int64
	lastUsed time.Time
}

// Manager holds live desk engines and persists them to a Store.
type Manager struct {
	remote attendance.Remote
	cal    attendance.Calendar
	store  Store
	log    *zap.Logger
	idle   time.Duration

	mu   sync.Mutex
	live map[string]*entry
}

// NewManager creates a manager. Engines unused for idle are dropped from
// memory by Sweep; their records stay in the store.
func NewManager(remote attendance.Remote, cal attendance.Calendar, store Store, idle time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Manager{remote: remote, cal: cal, store: store, log: log, idle: idle, live: make(map[string]*entry)}
}

// Open creates a desk for owner in schoolID.
func (m *Manager) Open(ctx context.Context, owner string, schoolID int64) (string, *attendance.Engine, error) {
	id := uuid.NewString()
	eng := attendance.NewEngine(m.remote, m.cal, schoolID, m.log.With(zap.String("desk", id)))
	e := &entry{engine: eng, owner: owner, schoolID: schoolID, lastUsed: m.cal.Clock()}

	if err := m.persist(ctx, id, e); err != nil {
		return "", nil, err
	}
	m.mu.Lock()
	m.live[id] = e
	metrics.OpenDesks.Set(float64(len(m.live)))
	m.mu.Unlock()
	m.log.Info("desk opened", zap.String("desk", id), zap.String("owner", owner), zap.Int64("school_id", schoolID))
	return id, eng, nil
}

// Get returns the engine for id, restoring it from the store if needed.
func (m *Manager) Get(ctx context.Context, id, owner string) (*attendance.Engine, error) {
	m.mu.Lock()
	e, ok := m.live[id]
	if ok {
		e.lastUsed = m.cal.Clock()
	}
	m.mu.Unlock()

	if !ok {
		rec, err := m.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		eng := attendance.NewEngine(m.remote, m.cal, rec.SchoolID, m.log.With(zap.String("desk", id)))
		eng.Restore(rec.Snapshot)
		e = &entry{engine: eng, owner: rec.Owner, schoolID: rec.SchoolID, lastUsed: m.cal.Clock()}

		m.mu.Lock()
		if cur, raced := m.live[id]; raced {
			e = cur
		} else {
			m.live[id] = e
		}
		metrics.OpenDesks.Set(float64(len(m.live)))
		m.mu.Unlock()
	}

	if e.owner != owner {
		return nil, ErrForbidden
	}
	return e.engine, nil
}

// Save persists the current state of desk id.
func (m *Manager) Save(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.live[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return m.persist(ctx, id, e)
}

// Close forgets desk id.
func (m *Manager) Close(ctx context.Context, id, owner string) error {
	if _, err := m.Get(ctx, id, owner); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.live, id)
	metrics.OpenDesks.Set(float64(len(m.live)))
	m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

// Sweep drops engines idle since before now-idle and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.live {
		if now.Sub(e.lastUsed) > m.idle {
			delete(m.live, id)
			n++
		}
	}
	metrics.OpenDesks.Set(float64(len(m.live)))
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Sweep(now); n > 0 {
				m.log.Debug("swept idle desks", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) persist(ctx context.Context, id string, e *entry) error {
	return m.store.Save(ctx, Record{
		ID:        id,
		Owner:     e.owner,
		SchoolID:  e.schoolID,
		Snapshot:  e.engine.Snapshot(),
		UpdatedAt: m.cal.Clock().UTC(),
	})
}
