package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRetriesExhausted    = errors.New("retries exhausted")
	ErrConflictingSelector = errors.New("tag_id and series_id are mutually exclusive")
	ErrLockHeld            = errors.New("lock already held")
)
