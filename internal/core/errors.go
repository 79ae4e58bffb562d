package core

import "errors"

var (
	// ErrSourceUnavailable is returned when a local source cannot be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRemoteQueryFailed marks a failed existence check against the remote store.
	ErrRemoteQueryFailed = errors.New("remote query failed")
	// ErrRemoteWriteFailed marks a failed write to the remote store.
	ErrRemoteWriteFailed = errors.New("remote write failed")
	// ErrAlreadyExists is returned by RemoteStore.WriteNew when an equal value
	// was written by another producer between the existence check and the write.
	ErrAlreadyExists = errors.New("value already exists")
)
