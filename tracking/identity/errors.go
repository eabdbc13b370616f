package identity

import "errors"

var (
	ErrStorageRequired   = errors.New("identity storage is required")
	ErrNamespaceRequired = errors.New("identity namespace is required")
	ErrEventNameRequired = errors.New("event name is required")
	ErrCorruptRecords    = errors.New("stored identity records are not a valid JSON array")
)
