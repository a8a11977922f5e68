package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-mgd/internal/scoring"
)

type pairKey struct{ coordinator, period int64 }

type memoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	evals     map[int64]Evaluation
	byPair    map[pairKey]int64
	responses map[int64]Responses
	now       func() time.Time
}

// NewInMemoryStore is a process-local Store for the service tests.
func NewInMemoryStore() Store {
	return &memoryStore{
		evals:     map[int64]Evaluation{},
		byPair:    map[pairKey]int64{},
		responses: map[int64]Responses{},
		now:       time.Now,
	}
}

func (m *memoryStore) GetOrCreate(_ context.Context, coordinatorID, periodID int64) (Evaluation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{coordinatorID, periodID}
	if id, ok := m.byPair[k]; ok {
		return m.evals[id], false, nil
	}
	m.nextID++
	e := Evaluation{
		ID:            m.nextID,
		CoordinatorID: coordinatorID,
		PeriodID:      periodID,
		CreatedAt:     time.Unix(m.now().Unix(), 0),
	}
	m.evals[e.ID] = e
	m.byPair[k] = e.ID
	m.responses[e.ID] = NewResponses()
	return e, true, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evals[id]
	if !ok {
		return Evaluation{}, fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	return e, nil
}

func (m *memoryStore) ListByPeriod(_ context.Context, periodID int64) ([]Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Evaluation
	for _, e := range m.evals {
		if e.PeriodID == periodID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) Responses(_ context.Context, id int64) (Responses, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.responses[id]
	if !ok {
		return Responses{}, fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	out := NewResponses()
	for k, v := range src.Behaviors {
		out.Behaviors[k] = v
	}
	for k, v := range src.Objectives {
		out.Objectives[k] = v
	}
	return out, nil
}

func (m *memoryStore) UpsertResponse(_ context.Context, id int64, kind Kind, itemID int64, compliance string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.openLocked(id); err != nil {
		return err
	}
	m.responses[id].of(kind)[itemID] = compliance
	return nil
}

func (m *memoryStore) UpdateComments(_ context.Context, id int64, c Comments) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.openLocked(id)
	if err != nil {
		return err
	}
	e.Comments = c
	m.evals[id] = e
	return nil
}

func (m *memoryStore) SetScore(_ context.Context, id int64, score scoring.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evals[id]
	if !ok {
		return fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	e.ScoreTotal = score
	m.evals[id] = e
	return nil
}

func (m *memoryStore) Close(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.openLocked(id)
	if err != nil {
		return err
	}
	e.Closed = true
	m.evals[id] = e
	return nil
}

func (m *memoryStore) openLocked(id int64) (Evaluation, error) {
	e, ok := m.evals[id]
	if !ok {
		return Evaluation{}, fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	if e.Closed {
		return Evaluation{}, fmt.Errorf("evaluation %d: %w", id, ErrClosed)
	}
	return e, nil
}
