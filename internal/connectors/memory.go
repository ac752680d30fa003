package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/paylimit-gate/internal/domain"
)

// MemoryLifecycle - учетная система в памяти: draft <-> posted.
// Для демо-стенда и тестов.
type MemoryLifecycle struct {
	mu     sync.Mutex
	posted map[string]bool
	// Fail, если задан, возвращается из следующего перехода вместо выполнения
	Fail error
}

func NewMemoryLifecycle() *MemoryLifecycle {
	return &MemoryLifecycle{posted: make(map[string]bool)}
}

func (m *MemoryLifecycle) Post(_ context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFail(); err != nil {
		return domain.TransitionResult{}, err
	}
	if m.posted[p.ID] {
		return domain.TransitionResult{}, fmt.Errorf("%w: %s already posted", domain.ErrInvalidTransition, p.ID)
	}
	m.posted[p.ID] = true
	p.State = domain.StatePosted
	return domain.TransitionResult{PaymentID: p.ID, State: domain.StatePosted, At: time.Now()}, nil
}

func (m *MemoryLifecycle) ResetToDraft(_ context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFail(); err != nil {
		return domain.TransitionResult{}, err
	}
	if !m.posted[p.ID] {
		return domain.TransitionResult{}, fmt.Errorf("%w: %s is not posted", domain.ErrInvalidTransition, p.ID)
	}
	delete(m.posted, p.ID)
	p.State = domain.StateDraft
	return domain.TransitionResult{PaymentID: p.ID, State: domain.StateDraft, At: time.Now()}, nil
}

func (m *MemoryLifecycle) IsPosted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posted[id]
}

func (m *MemoryLifecycle) takeFail() error {
	err := m.Fail
	m.Fail = nil
	return err
}
