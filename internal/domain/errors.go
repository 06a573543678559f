package domain

import "errors"

var (
	// ErrInvalidQuery signals a missing or empty search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrIndexUnavailable signals that the vector index could not serve any retrieval call.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrCMSUnavailable signals that the CMS could not be reached or is unconfigured.
	ErrCMSUnavailable = errors.New("cms unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrExpanderUnavailable signals a query expander failure.
	ErrExpanderUnavailable = errors.New("query expander unavailable")
	// ErrConfigurationMissing signals an absent collaborator credential.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrEntryNotFound signals a missing CMS entry.
	ErrEntryNotFound = errors.New("entry not found")
)
