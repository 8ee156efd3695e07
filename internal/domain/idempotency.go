package domain

import "time"

// IdempotencyStatus — фаза обработки запроса с idempotency-key.
// processing переходит ровно в один терминальный статус: done или failed.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord хранит исход обработки запроса с idempotency-key.
// Повтор того же ключа получает сохранённый ResponseBody/HTTPStatus вместо
// второй попытки купить тот же товар; RequestHash ловит попытку переиспользовать
// ключ с другим телом запроса. TTLAt ограничивает жизнь записи: после него
// cleanup-воркер удаляет её, и ключ можно занять заново.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	ResponseBody []byte
	HTTPStatus   int
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
