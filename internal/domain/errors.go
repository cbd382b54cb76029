package domain

import "errors"

var (
	// ErrRateLimited marks a quota or rate-limit rejection from the remote API.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound means the requested channel does not exist.
	ErrNotFound = errors.New("channel not found")
	// ErrFetch is a failed thumbnail download.
	ErrFetch = errors.New("thumbnail fetch failed")
	// ErrMalformedItem is a remote video missing its id or thumbnail.
	ErrMalformedItem = errors.New("malformed item")
	// ErrPersistence is a failed reconciliation transaction.
	ErrPersistence = errors.New("persistence failure")
	// ErrDispatch is a failed notification send.
	ErrDispatch = errors.New("notification dispatch failed")
)
