package queue

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Config задаёт веса priority-скоринга и TTL выданного слота.
// Константы скоринга вынесены в конфигурацию, чтобы веса можно было
// крутить без пересборки.
type Config struct {
	// TierWeights — базовый вклад tier в скор.
	TierWeights map[domain.CustomerTier]int64
	// PointsDivisor — сколько баллов лояльности дают одну единицу скора.
	PointsDivisor int64
	// PointsCap — потолок вклада баллов.
	PointsCap int64
	// SeniorityPerMonth — вклад каждого полного месяца с регистрации.
	SeniorityPerMonth int64
	// SeniorityCap — потолок вклада стажа.
	SeniorityCap int64
	// GraceTTL — сколько выданный (processed) слот живёт без покупки,
	// после чего запись возвращается в хвост очереди.
	GraceTTL time.Duration
}

// DefaultConfig возвращает конфигурацию очереди по умолчанию.
func DefaultConfig() Config {
	return Config{
		TierWeights: map[domain.CustomerTier]int64{
			domain.TierGold:   1000,
			domain.TierSilver: 500,
			domain.TierBronze: 100,
		},
		PointsDivisor:     10,
		PointsCap:         500,
		SeniorityPerMonth: 10,
		SeniorityCap:      200,
		GraceTTL:          10 * time.Minute,
	}
}

// skuQueue — состояние очереди одного SKU.
type skuQueue struct {
	// waiting упорядочен по дисциплине; Position = индекс + 1.
	waiting []*domain.QueueEntry
	// processed — выданные слоты по customerID, ждущие покупки или истечения.
	processed map[string]*domain.QueueEntry
}

// Service — очередь допуска к дефицитным SKU. Решение "нужна ли очередь
// вообще" принимает вызывающая сторона по текущему стоку; сервис лишь
// упорядочивает тех, кого в неё отправили.
type Service struct {
	cfg       Config
	customers domain.CustomerStore
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	rand      *rand.Rand
	now       func() time.Time

	mu     sync.Mutex
	queues map[string]*skuQueue
}

// Option настраивает очередь допуска.
type Option func(*Service)

// WithRand подменяет источник случайности lottery-дисциплины.
// Тесты передают сюда seeded rand для детерминизма.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rand = r }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт очередь допуска.
func NewService(cfg Config, customers domain.CustomerStore, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "admission_queue")
	}
	svc := &Service{
		cfg:       cfg,
		customers: customers,
		logger:    logger,
		metrics:   metrics.NewOrderMetrics(),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		queues:    make(map[string]*skuQueue),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewServiceWithoutMetrics создаёт очередь без метрик (для тестов).
func NewServiceWithoutMetrics(cfg Config, customers domain.CustomerStore, logger *log.Entry, opts ...Option) *Service {
	svc := NewService(cfg, customers, logger, opts...)
	svc.metrics = nil
	return svc
}

// Join ставит клиента в очередь за SKU и возвращает запись с позицией.
// Повторный join при живой записи отклоняется с ErrAlreadyQueued.
func (s *Service) Join(sku, customerID string, discipline domain.QueueDiscipline) (domain.QueueEntry, error) {
	if sku == "" {
		return domain.QueueEntry{}, domain.ErrSKURequired
	}
	if customerID == "" {
		return domain.QueueEntry{}, domain.ErrCustomerRequired
	}
	if !discipline.Valid() {
		return domain.QueueEntry{}, domain.ErrQueueDisciplineInvalid
	}

	// Скор считается до захвата мьютекса: lookup клиента может быть сетевым.
	var score int64
	if discipline == domain.DisciplinePriority {
		customer, err := s.lookupCustomer(customerID)
		if err != nil {
			return domain.QueueEntry{}, err
		}
		score = s.score(customer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queueFor(sku)
	if s.hasActive(q, customerID) {
		if s.metrics != nil {
			s.metrics.RecordQueueRejected()
		}
		return domain.QueueEntry{}, domain.ErrAlreadyQueued
	}

	entry := &domain.QueueEntry{
		ID:         uuid.NewString(),
		SKU:        sku,
		CustomerID: customerID,
		Discipline: discipline,
		Score:      score,
		Status:     domain.QueueStatusWaiting,
		JoinedAt:   s.now(),
	}

	switch discipline {
	case domain.DisciplineFIFO:
		q.waiting = append(q.waiting, entry)
	case domain.DisciplinePriority:
		// Вставка после всех со скором >= своего: равные обслуживаются FIFO,
		// но golds никогда не стоят позади bronze, joined раньше или нет.
		idx := len(q.waiting)
		for i, waiting := range q.waiting {
			if waiting.Score < score {
				idx = i
				break
			}
		}
		q.waiting = insertAt(q.waiting, idx, entry)
	case domain.DisciplineLottery:
		idx := s.rand.Intn(len(q.waiting) + 1)
		q.waiting = insertAt(q.waiting, idx, entry)
	}
	renumber(q.waiting)

	if s.metrics != nil {
		s.metrics.RecordQueueJoin(string(discipline))
	}
	s.logger.WithFields(log.Fields{
		"sku":        sku,
		"customer":   customerID,
		"discipline": discipline,
		"position":   entry.Position,
	}).Info("customer joined admission queue")

	return *entry, nil
}

// Position возвращает активную запись клиента. Для processed-записи
// Position равен 0: клиент уже выпущен из очереди и держит слот.
func (s *Service) Position(sku, customerID string) (domain.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[sku]
	if !ok {
		return domain.QueueEntry{}, domain.ErrQueueEntryNotFound
	}
	for _, entry := range q.waiting {
		if entry.CustomerID == customerID {
			return *entry, nil
		}
	}
	if entry, ok := q.processed[customerID]; ok {
		return *entry, nil
	}
	return domain.QueueEntry{}, domain.ErrQueueEntryNotFound
}

// Leave убирает клиента из очереди по его собственной инициативе.
func (s *Service) Leave(sku, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[sku]
	if !ok {
		return domain.ErrQueueEntryNotFound
	}
	for i, entry := range q.waiting {
		if entry.CustomerID == customerID {
			entry.Status = domain.QueueStatusLeft
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			renumber(q.waiting)
			return nil
		}
	}
	if entry, ok := q.processed[customerID]; ok {
		entry.Status = domain.QueueStatusLeft
		delete(q.processed, customerID)
		return nil
	}
	return domain.ErrQueueEntryNotFound
}

// DequeueNext выдаёт до n слотов с головы очереди. Записи помечаются
// processed; позиции оставшихся сдвигаются на количество выданных.
func (s *Service) DequeueNext(sku string, n int) ([]domain.QueueEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[sku]
	if !ok || len(q.waiting) == 0 {
		return nil, nil
	}
	if n > len(q.waiting) {
		n = len(q.waiting)
	}

	granted := make([]domain.QueueEntry, 0, n)
	now := s.now()
	for _, entry := range q.waiting[:n] {
		entry.Status = domain.QueueStatusProcessed
		entry.ProcessedAt = now
		entry.Position = 0
		q.processed[entry.CustomerID] = entry
		granted = append(granted, *entry)
	}
	q.waiting = q.waiting[n:]
	renumber(q.waiting)

	return granted, nil
}

// Complete закрывает выданный слот после состоявшейся покупки.
func (s *Service) Complete(sku, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[sku]
	if !ok {
		return domain.ErrQueueEntryNotFound
	}
	entry, ok := q.processed[customerID]
	if !ok {
		return domain.ErrQueueEntryNotFound
	}
	entry.Status = domain.QueueStatusCompleted
	delete(q.processed, customerID)
	return nil
}

// ExpireStale возвращает в хвост очереди слоты, выданные дольше GraceTTL
// назад и так и не использованные. Возвращает количество возвращённых.
func (s *Service) ExpireStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.GraceTTL)
	expired := 0
	for sku, q := range s.queues {
		for customerID, entry := range q.processed {
			if entry.ProcessedAt.After(cutoff) {
				continue
			}
			delete(q.processed, customerID)
			entry.Status = domain.QueueStatusWaiting
			entry.ProcessedAt = time.Time{}
			q.waiting = append(q.waiting, entry)
			expired++
			s.logger.WithFields(log.Fields{
				"sku":      sku,
				"customer": customerID,
			}).Warn("admission slot expired, customer re-queued")
		}
		renumber(q.waiting)
	}
	return expired
}

// Depth возвращает количество ожидающих в очереди SKU.
func (s *Service) Depth(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[sku]
	if !ok {
		return 0
	}
	return len(q.waiting)
}

func (s *Service) queueFor(sku string) *skuQueue {
	q, ok := s.queues[sku]
	if !ok {
		q = &skuQueue{processed: make(map[string]*domain.QueueEntry)}
		s.queues[sku] = q
	}
	return q
}

func (s *Service) hasActive(q *skuQueue, customerID string) bool {
	if _, ok := q.processed[customerID]; ok {
		return true
	}
	for _, entry := range q.waiting {
		if entry.CustomerID == customerID {
			return true
		}
	}
	return false
}

// lookupCustomer достаёт клиента для скоринга. Неизвестный клиент
// скорится как новый bronze без баллов, а не отклоняется.
func (s *Service) lookupCustomer(customerID string) (domain.Customer, error) {
	customer, err := s.customers.GetCustomer(customerID)
	if errors.Is(err, domain.ErrCustomerNotFound) {
		return domain.Customer{ID: customerID, Tier: domain.TierBronze}, nil
	}
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// score — взвешенная сумма tier, баллов лояльности и стажа аккаунта.
func (s *Service) score(customer domain.Customer) int64 {
	score := s.cfg.TierWeights[customer.Tier]

	if s.cfg.PointsDivisor > 0 {
		points := customer.LoyaltyPoints / s.cfg.PointsDivisor
		if points > s.cfg.PointsCap {
			points = s.cfg.PointsCap
		}
		score += points
	}

	if !customer.SignedUpAt.IsZero() {
		months := int64(s.now().Sub(customer.SignedUpAt).Hours() / (24 * 30))
		seniority := months * s.cfg.SeniorityPerMonth
		if seniority > s.cfg.SeniorityCap {
			seniority = s.cfg.SeniorityCap
		}
		score += seniority
	}
	return score
}

func insertAt(entries []*domain.QueueEntry, idx int, entry *domain.QueueEntry) []*domain.QueueEntry {
	entries = append(entries, nil)
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = entry
	return entries
}

func renumber(entries []*domain.QueueEntry) {
	for i, entry := range entries {
		entry.Position = i + 1
	}
}
