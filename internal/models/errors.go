package models

import "errors"

// Storage sentinel errors. Repositories return these so callers can branch
// with errors.Is without depending on database/sql or driver error types.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)
