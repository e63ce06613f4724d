package index

import "errors"

var (
	// ErrRepositoryRequired is returned when an index repository is not provided.
	ErrRepositoryRequired = errors.New("index repository required")

	// ErrProviderRequired is returned when an AI provider is not provided.
	ErrProviderRequired = errors.New("AI provider required")

	// ErrOutboxRequired is returned when an outbox repository is not provided.
	ErrOutboxRequired = errors.New("outbox repository required")

	// ErrUnknownKind is returned when no Source is registered for a kind.
	ErrUnknownKind = errors.New("unknown source kind")

	// ErrEntityNotFound is returned by a Source when the entity does not exist.
	ErrEntityNotFound = errors.New("source entity not found")

	// ErrSourceRequired is returned when registering a nil Source.
	ErrSourceRequired = errors.New("source required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrDispatcherClosed is returned when an event is submitted after Release.
	ErrDispatcherClosed = errors.New("dispatcher released")
)
