package enums

// NotificationType is the template key the external delivery service renders.
type NotificationType string

const (
	NotificationFundsReleased      NotificationType = "funds_released"
	NotificationPaymentReceived    NotificationType = "payment_received"
	NotificationRefundProcessed    NotificationType = "refund_processed"
	NotificationPaymentReminder    NotificationType = "payment_reminder"
	NotificationPaymentReview      NotificationType = "payment_review_required"
	NotificationInspectionReminder NotificationType = "inspection_reminder"
	NotificationInspectionFailed   NotificationType = "inspection_failed"
	NotificationAuthorityAlert     NotificationType = "authority_alert"
	NotificationPaymentVerified    NotificationType = "payment_verified"
	NotificationPaymentRejected    NotificationType = "payment_rejected"
	NotificationDisputeOpened      NotificationType = "dispute_opened"
	NotificationTransactionUpdate  NotificationType = "transaction_update"
)
