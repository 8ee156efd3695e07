package payment

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockService симулирует платёжного провайдера: списания и возвраты
// учитываются в памяти, сбои задаются сценарием теста или конфигурацией.
type MockService struct {
	mu       sync.Mutex
	delay    time.Duration
	nextErr  error
	payments map[string]int64
	refunds  map[string]int64
}

// Option настраивает мок платёжного провайдера.
type Option func(*MockService)

// WithDelay добавляет фиксированную задержку каждому вызову,
// имитируя сетевой round-trip до провайдера.
func WithDelay(delay time.Duration) Option {
	return func(m *MockService) { m.delay = delay }
}

// NewMockService создаёт мок, по умолчанию принимающий все платежи.
func NewMockService(opts ...Option) *MockService {
	m := &MockService{
		payments: make(map[string]int64),
		refunds:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailNext заставляет следующий вызов Pay/Refund вернуть err.
func (m *MockService) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// Pay списывает средства по заказу.
func (m *MockService) Pay(orderID string, amountMinor int64) (domain.PaymentStatus, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeErr(); err != nil {
		return domain.PaymentStatusFailed, err
	}
	if amountMinor < 0 {
		return domain.PaymentStatusFailed, domain.ErrPaymentDeclined
	}
	m.payments[orderID] += amountMinor
	return domain.PaymentStatusCaptured, nil
}

// Refund возвращает средства по заказу.
func (m *MockService) Refund(orderID string, amountMinor int64) (domain.PaymentStatus, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeErr(); err != nil {
		return domain.PaymentStatusFailed, err
	}
	m.refunds[orderID] += amountMinor
	return domain.PaymentStatusRefunded, nil
}

// Paid возвращает суммарно списанную по заказу сумму.
func (m *MockService) Paid(orderID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[orderID]
}

// Refunded возвращает суммарно возвращённую по заказу сумму.
func (m *MockService) Refunded(orderID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds[orderID]
}

func (m *MockService) takeErr() error {
	err := m.nextErr
	m.nextErr = nil
	return err
}

var _ domain.PaymentService = (*MockService)(nil)
