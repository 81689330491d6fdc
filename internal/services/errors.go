package services

import "errors"

// ErrStorageUnavailable is returned when an avatar operation is invoked
// without a configured storage backend.
var ErrStorageUnavailable = errors.New("object storage not configured")
