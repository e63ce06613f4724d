package api

import "errors"

var (
	ErrSearcherRequired = errors.New("searcher is required")
	ErrIndexerRequired  = errors.New("indexer is required")
	ErrMissingToken     = errors.New("missing or invalid authorization")
	ErrInvalidToken     = errors.New("invalid token")
	ErrForbidden        = errors.New("admin access required")
	ErrInvalidLimit     = errors.New("limit must be a positive integer")
	ErrInvalidEntryID   = errors.New("invalid index entry id")
)
