package models

import "github.com/google/uuid"

// ensureID assigns a random id when the caller left it unset. Postgres would
// default it, but sqlite has no gen_random_uuid.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
