package listing

import "errors"

var (
	ErrDatabaseRequired   = errors.New("database is required")
	ErrInvalidListingType = errors.New("invalid listing type")
	ErrListingNotFound    = errors.New("listing not found")
)
