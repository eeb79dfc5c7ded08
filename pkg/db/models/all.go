package models

// All lists every persisted model. Tests migrate sqlite databases from it.
func All() []any {
	return []any{
		&User{},
		&Vehicle{},
		&Dealer{},
		&Transaction{},
		&Payment{},
		&Dispute{},
		&BlacklistEntry{},
		&StolenVehicle{},
		&WatchlistEntry{},
		&DeviceFingerprint{},
		&AuditEntry{},
		&OutboxEvent{},
	}
}
