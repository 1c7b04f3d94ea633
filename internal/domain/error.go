package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotOwner           = errors.New("caller does not own this entity")
	ErrUnauthorized       = errors.New("caller identity could not be verified")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Provider-facing errors
	ErrProviderUnavailable     = errors.New("payment provider request failed")
	ErrProviderData            = errors.New("malformed payment provider payload")
	ErrProviderResourceMissing = errors.New("payment provider resource no longer exists")

	// Subscription lifecycle errors
	ErrSubscriptionCancelled = errors.New("subscription is cancelled")
	ErrActiveSubscription    = errors.New("user already has an active subscription")
)
