package domain

import "errors"

var (
	// ErrCatalogMissing is returned when the quiz catalog backing file does not exist.
	ErrCatalogMissing = errors.New("quiz catalog not found")
	// ErrCatalogMalformed is returned when the catalog exists but does not parse into the expected shape.
	ErrCatalogMalformed = errors.New("quiz catalog malformed")
	// ErrSessionNotFound is returned when a user acts before joining.
	ErrSessionNotFound = errors.New("session not found")
	// ErrLevelNotFound indicates an unknown level name.
	ErrLevelNotFound = errors.New("level not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option key is not part of the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrLevelFinalized is returned when answers are mutated or re-finalized after finalize.
	ErrLevelFinalized = errors.New("level already finalized in this session")
	// ErrScoreNotFound indicates no persisted record exists for (user, level).
	ErrScoreNotFound = errors.New("score not found")
	// ErrUnknownProvider indicates a provider name outside the supported set.
	ErrUnknownProvider = errors.New("unknown chat provider")
	// ErrAPIKeyMissing indicates no API key is configured for the provider.
	ErrAPIKeyMissing = errors.New("api key missing for provider")
)
