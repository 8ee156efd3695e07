package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// drainPassLimit ограничивает число батчей за один цикл: если MarkSent или
// MarkFailed не проходят, pending-записи возвращаются в выборку и без
// ограничения цикл не завершился бы.
const drainPassLimit = 10

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// Config — настройки публикатора outbox. Нулевые PollInterval, BatchSize и
// MaxAttempts заменяются дефолтами; нулевой RetryBaseDelay отключает паузы
// между попытками.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig возвращает настройки публикатора по умолчанию.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		BatchSize:      100,
		MaxAttempts:    3,
		RetryBaseDelay: 50 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	return c
}

// deadLetter — конверт, в котором исчерпавшее retry событие уезжает в DLQ.
// Первые пять полей повторяют outbox-запись, чтобы cmd/dlq-reprocess мог
// восстановить событие и вернуть его в рабочий topic.
type deadLetter struct {
	OutboxID      string            `json:"outbox_id"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	EventType     string            `json:"event_type"`
	Payload       json.RawMessage   `json:"payload"`
	Failure       deadLetterFailure `json:"failure"`
}

type deadLetterFailure struct {
	Error      string    `json:"error"`
	Attempts   int       `json:"attempts"`
	DivertedAt time.Time `json:"diverted_at"`
}

// Worker доставляет события из transactional outbox в брокер. Заказные и
// стоковые события пишутся сервисами в одной единице работы с изменением
// состояния; воркер — единственный путь, которым они покидают базу.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	cfg       Config
	logger    *log.Entry
}

// NewWorker создаёт публикатор outbox. dlq может быть nil: тогда событие
// после исчерпания retry помечается failed без отправки в DLQ.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, dlq domain.OutboxPublisher, cfg Config, logger *log.Entry) *Worker {
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		dlq:       dlq,
		cfg:       cfg.normalized(),
		logger:    logger,
	}
}

// Run крутит циклы доставки до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain выгребает pending-записи батчами, пока outbox не опустеет. Во время
// всплеска flash-sale backlog разбирается за один цикл, а не по батчу на тик.
func (w *Worker) Drain(ctx context.Context) {
	w.observeBacklog()
	defer w.observeBacklog()

	for pass := 0; pass < drainPassLimit; pass++ {
		if ctx.Err() != nil {
			return
		}

		batch, err := w.repo.PullPending(w.cfg.BatchSize)
		if err != nil {
			w.logger.WithError(err).Warn("failed to pull pending outbox messages")
			return
		}
		if len(batch) == 0 {
			return
		}

		for _, msg := range batch {
			if ctx.Err() != nil {
				return
			}
			w.dispatch(ctx, msg)
		}

		if len(batch) < w.cfg.BatchSize {
			return
		}
	}
}

// dispatch доводит одно событие до терминального исхода: sent либо
// failed с уводом в DLQ.
func (w *Worker) dispatch(ctx context.Context, msg domain.OutboxMessage) {
	attempts, err := w.deliver(ctx, msg)
	if err == nil {
		if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
			w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as sent")
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	outboxPublishAttempts.WithLabelValues("failed").Inc()
	w.logger.WithError(err).WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"attempts":   attempts,
	}).Error("outbox publish failed after retries")

	if dlqErr := w.divert(msg, attempts, err); dlqErr != nil {
		outboxPublishAttempts.WithLabelValues("dlq_failed").Inc()
		w.logger.WithError(dlqErr).WithField("outbox_id", msg.ID).Warn("failed to publish to DLQ")
	}
	if markErr := w.repo.MarkFailed(msg.ID); markErr != nil {
		w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as failed")
	}
}

// deliver публикует событие с повторами и возвращает число сделанных попыток.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := w.publisher.Publish(msg)
		if err == nil {
			outboxPublishAttempts.WithLabelValues("sent").Inc()
			return attempt, nil
		}
		lastErr = err
		outboxPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.cfg.MaxAttempts {
			return attempt, fmt.Errorf("publish failed after %d attempts: %w", attempt, lastErr)
		}

		delay := w.backoff(attempt)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff возвращает задержку перед попыткой attempt+1: базовая задержка
// удваивается с каждой попыткой и ограничена RetryMaxDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.cfg.RetryBaseDelay <= 0 {
		return 0
	}
	delay := w.cfg.RetryBaseDelay << (attempt - 1)
	if delay <= 0 || delay > w.cfg.RetryMaxDelay {
		return w.cfg.RetryMaxDelay
	}
	return delay
}

// divert заворачивает событие в dead-letter конверт и публикует его в DLQ.
func (w *Worker) divert(msg domain.OutboxMessage, attempts int, cause error) error {
	if w.dlq == nil {
		return nil
	}

	payload, err := json.Marshal(deadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		Failure: deadLetterFailure{
			Error:      cause.Error(),
			Attempts:   attempts,
			DivertedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	letter := domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
	}
	if err := w.dlq.Publish(letter); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

// observeBacklog обновляет gauges глубины и возраста backlog.
func (w *Worker) observeBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}
	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}
