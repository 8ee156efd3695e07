package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в storefront.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток зарезервирован, обработка ещё не началась.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён и оплачен.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ комплектуется на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен клиенту; резерв конвертирован в продажу.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — клиент вернул товар после доставки.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusRefunded — средства возвращены клиенту; терминальный статус.
	OrderStatusRefunded OrderStatus = "refunded"
)

// orderTransitions задаёт допустимые переходы статусов.
// Терминальные статусы (cancelled, refunded) не имеют исходящих переходов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered:  {OrderStatusReturned, OrderStatusRefunded},
	OrderStatusReturned:   {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// Valid проверяет, что статус принадлежит фиксированному набору.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal сообщает, есть ли у статуса исходящие переходы.
func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// CanTransition проверяет допустимость перехода from → to по таблице переходов.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SalesChannel — канал продаж, через который оформлен заказ.
type SalesChannel string

const (
	ChannelOnline    SalesChannel = "online"
	ChannelMobile    SalesChannel = "mobile"
	ChannelInStore   SalesChannel = "in_store"
	ChannelWholesale SalesChannel = "wholesale"
)

// Valid проверяет, что канал принадлежит поддерживаемому набору.
func (c SalesChannel) Valid() bool {
	switch c {
	case ChannelOnline, ChannelMobile, ChannelInStore, ChannelWholesale:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа. Позиции неизменяемы после создания.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// SKU — внешний идентификатор товара.
	SKU string
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// Location — склад, с которого резервируется позиция.
	Location string
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// SubtotalMinor возвращает стоимость позиции (qty * price).
func (i OrderItem) SubtotalMinor() int64 {
	return int64(i.Qty) * i.PriceMinor
}

// StatusChange — одна запись истории статусов заказа.
type StatusChange struct {
	Status   OrderStatus
	Note     string
	Occurred time.Time
}

// Order агрегирует состояние заказа, его позиции и историю статусов.
// Заказы никогда не удаляются: терминальные статусы остаются для аудита.
type Order struct {
	ID          string
	CustomerID  string
	Channel     SalesChannel
	Status      OrderStatus
	AmountMinor int64
	Items       []OrderItem
	// History содержит каждую смену статуса, включая событие создания,
	// в монотонно возрастающем по времени порядке.
	History []StatusChange
	// Priority управляет порядком выборки в конвейере обработки (больше — раньше).
	Priority int32
	// ProcessingTime выставляется один раз при доставке: deliveredAt - createdAt.
	ProcessingTime time.Duration
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecordStatus применяет смену статуса и дописывает запись истории.
// Допустимость перехода проверяет вызывающий через CanTransition.
func (o *Order) RecordStatus(status OrderStatus, note string, at time.Time) {
	o.Status = status
	o.UpdatedAt = at
	o.History = append(o.History, StatusChange{Status: status, Note: note, Occurred: at})
	if status == OrderStatusDelivered && o.ProcessingTime == 0 {
		o.ProcessingTime = at.Sub(o.CreatedAt)
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if !o.Channel.Valid() {
		errs = append(errs, ErrChannelInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.SKU == "" {
			errs = append(errs, ErrItemSKURequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.SubtotalMinor()
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
