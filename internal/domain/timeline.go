package domain

import "time"

// Типы событий жизненного цикла заказа, попадающих в timeline.
const (
	TimelineOrderCreated      = "order_created"
	TimelineReferenceAttached = "reference_attached"
	TimelinePaymentRecorded   = "payment_recorded"
	TimelineOrderPaid         = "order_paid"
	TimelineOrderFailed       = "order_failed"
	TimelineOrderRetried      = "order_retried"
)

// TimelineEvent описывает событие в жизненном цикле заказа. По цепочке таких
// событий последовательность обработки заказа восстанавливается постфактум.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
