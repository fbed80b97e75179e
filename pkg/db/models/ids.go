package models

import "github.com/google/uuid"

// ensureID fills a zero primary key before insert so rows get ids on drivers
// without a gen_random_uuid() default.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
