package models

import "github.com/google/uuid"

// assignID fills an unset primary key so Postgres and SQLite rows get
// identical application-generated ids.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
