package domain

import "errors"

// Sentinel errors shared by the storage and pipeline layers. Callers match
// with errors.Is after wrapping.
var (
	// ErrNotFound is returned when a record does not exist for the tenant.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for malformed or missing request data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDocumentType is returned when a request names a document
	// type outside the supported set.
	ErrUnknownDocumentType = errors.New("unknown document type")
)
