package entity

import "errors"

// Sentinel errors for command mapping. The dispatcher classifies every
// rejected command into one of these so the API layer can map them to
// transport responses without string matching.
var (
	// ErrNotImplemented indicates the command is not supported by the
	// entity. No network traffic is generated.
	ErrNotImplemented = errors.New("entity: command not implemented")

	// ErrInvalidArgument indicates the command parameters are missing or
	// out of range.
	ErrInvalidArgument = errors.New("entity: invalid command argument")
)
