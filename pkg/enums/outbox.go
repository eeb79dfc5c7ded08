package enums

import "slices"

// OutboxAggregateType is the aggregate_type_enum column: the entity an
// outbox event is ordered under.
type OutboxAggregateType string

const (
	AggregateTransaction  OutboxAggregateType = "transaction"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateUser         OutboxAggregateType = "user"
	AggregateNotification OutboxAggregateType = "notification"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains([]OutboxAggregateType{
		AggregateTransaction, AggregatePayment, AggregateUser, AggregateNotification,
	}, a)
}

// OutboxEventType is the event_type_enum column. Adding a value needs a
// migration and a route in outbox.NewRouter.
type OutboxEventType string

const (
	EventNotificationRequested  OutboxEventType = "notification_requested"
	EventTransactionStateChange OutboxEventType = "transaction_state_changed"
	EventFundsReleased          OutboxEventType = "funds_released"
	EventFundsRefunded          OutboxEventType = "funds_refunded"
	EventPaymentVerified        OutboxEventType = "payment_verified"
	EventPaymentRejected        OutboxEventType = "payment_rejected"
)

// OutboxEventTypes lists every event type in declaration order.
func OutboxEventTypes() []OutboxEventType {
	return []OutboxEventType{
		EventNotificationRequested,
		EventTransactionStateChange,
		EventFundsReleased,
		EventFundsRefunded,
		EventPaymentVerified,
		EventPaymentRejected,
	}
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(OutboxEventTypes(), e)
}
