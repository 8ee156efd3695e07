package domain

import "time"

// QueueDiscipline — политика упорядочивания очереди допуска.
type QueueDiscipline string

const (
	// DisciplineFIFO — строгий порядок прибытия.
	DisciplineFIFO QueueDiscipline = "fifo"
	// DisciplinePriority — порядок по взвешенному скору (tier, баллы, стаж).
	DisciplinePriority QueueDiscipline = "priority"
	// DisciplineLottery — случайная позиция; защита от ботов,
	// гарантирующих себе голову очереди мгновенным join.
	DisciplineLottery QueueDiscipline = "lottery"
)

// Valid проверяет, что дисциплина поддерживается.
func (d QueueDiscipline) Valid() bool {
	switch d {
	case DisciplineFIFO, DisciplinePriority, DisciplineLottery:
		return true
	default:
		return false
	}
}

// QueueEntryStatus описывает состояние записи в очереди допуска.
type QueueEntryStatus string

const (
	// QueueStatusWaiting — клиент ждёт своей очереди.
	QueueStatusWaiting QueueEntryStatus = "waiting"
	// QueueStatusProcessed — запись выдана через DequeueNext, слот активен.
	QueueStatusProcessed QueueEntryStatus = "processed"
	// QueueStatusLeft — клиент покинул очередь сам.
	QueueStatusLeft QueueEntryStatus = "left"
	// QueueStatusCompleted — выданный слот использован (покупка состоялась).
	QueueStatusCompleted QueueEntryStatus = "completed"
)

// QueueEntry — запись клиента в очереди допуска к дефицитному SKU.
// Инвариант: не более одной активной (waiting или processed) записи
// на пару (customer, SKU).
type QueueEntry struct {
	ID         string
	SKU        string
	CustomerID string
	Discipline QueueDiscipline
	// Position — текущая позиция среди ожидающих, начиная с 1.
	Position int
	// Score хранится для priority-дисциплины, чтобы последующие join
	// вставали в консистентное место.
	Score       int64
	Status      QueueEntryStatus
	JoinedAt    time.Time
	ProcessedAt time.Time
}

// Active сообщает, занимает ли запись слот в очереди.
func (e QueueEntry) Active() bool {
	return e.Status == QueueStatusWaiting || e.Status == QueueStatusProcessed
}
