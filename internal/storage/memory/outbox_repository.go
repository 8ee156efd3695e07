package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

// outboxEntry — запись журнала событий с её статусом доставки.
type outboxEntry struct {
	msg       domain.OutboxMessage
	status    string
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// outboxRepositoryInMemory держит события в журнале в порядке записи:
// PullPending отдаёт их в том же порядке, что и постгресовый частичный
// индекс по (created_at, id).
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	journal []*outboxEntry
	byID    map[string]*outboxEntry
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{byID: make(map[string]*outboxEntry)}
}

// Enqueue добавляет событие в хвост журнала со статусом pending.
func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry := &outboxEntry{
		msg:       msg,
		status:    outboxPending,
		createdAt: now,
		updatedAt: now,
	}
	r.journal = append(r.journal, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

// PullPending возвращает до limit недоставленных событий в порядке записи.
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	batch := make([]domain.OutboxMessage, 0, limit)
	for _, entry := range r.journal {
		if entry.status != outboxPending {
			continue
		}
		batch = append(batch, entry.msg)
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}

// Stats возвращает глубину backlog и время самой старой pending-записи.
func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, entry := range r.journal {
		if entry.status != outboxPending {
			continue
		}
		// Журнал упорядочен по времени записи, первая pending и есть старейшая.
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = entry.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.settle(id, outboxSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.settle(id, outboxFailed)
}

// settle переводит pending-запись в терминальный статус. Терминальные
// статусы не перезаписываются.
func (r *outboxRepositoryInMemory) settle(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok || entry.status != outboxPending {
		return domain.ErrOutboxPublish
	}
	entry.status = status
	entry.attempts++
	entry.updatedAt = time.Now().UTC()
	return nil
}

// AllPending возвращает копию недоставленных событий (для тестов).
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]domain.OutboxMessage, 0, len(r.journal))
	for _, entry := range r.journal {
		if entry.status == outboxPending {
			pending = append(pending, entry.msg)
		}
	}
	return pending
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
