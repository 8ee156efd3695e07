package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var (
	idempotencySweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_idempotency_sweep_runs_total",
		Help: "Total number of idempotency sweep runs grouped by result.",
	}, []string{"result"})
	idempotencySweptKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_idempotency_swept_keys_total",
		Help: "Total number of expired idempotency keys removed.",
	})
	idempotencyLastSweepKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_idempotency_last_sweep_keys",
		Help: "Number of keys removed by the last sweep run.",
	})
)

// SweepConfig — настройки выметания просроченных idempotency-ключей.
type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultSweepConfig возвращает настройки выметания по умолчанию.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:  10 * time.Minute,
		BatchSize: 500,
	}
}

func (c SweepConfig) normalized() SweepConfig {
	def := DefaultSweepConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	return c
}

// Sweeper выметает просроченные idempotency-записи. После удаления записи
// её ключ снова свободен: клиент с истёкшим ключом начинает покупку заново,
// а не получает чужой сохранённый ответ.
type Sweeper struct {
	repo   domain.IdempotencyRepository
	cfg    SweepConfig
	logger *log.Entry
}

// NewSweeper создаёт воркер выметания idempotency-ключей.
func NewSweeper(repo domain.IdempotencyRepository, cfg SweepConfig, logger *log.Entry) *Sweeper {
	if logger == nil {
		logger = log.WithField("component", "idempotency-sweeper")
	}
	return &Sweeper{
		repo:   repo,
		cfg:    cfg.normalized(),
		logger: logger,
	}
}

// Run запускает периодическое выметание до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	swept, err := s.Sweep(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		idempotencySweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}

	idempotencySweepRuns.WithLabelValues("ok").Inc()
	idempotencyLastSweepKeys.Set(float64(swept))
	if swept > 0 {
		s.logger.WithField("swept", swept).Info("expired idempotency keys removed")
	}
}

// Sweep удаляет записи с ttl <= before батчами, пока они не закончатся,
// и возвращает число удалённых ключей.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	swept := 0
	for {
		if err := ctx.Err(); err != nil {
			return swept, err
		}

		deleted, err := s.repo.DeleteExpired(before, s.cfg.BatchSize)
		if err != nil {
			return swept, err
		}

		swept += deleted
		if deleted > 0 {
			idempotencySweptKeys.Add(float64(deleted))
		}
		if deleted < s.cfg.BatchSize {
			return swept, nil
		}
	}
}
