package domain

import "errors"

var (
	// ErrNotFound indicates a requested session or participant is missing.
	ErrNotFound = errors.New("record not found")
	// ErrSessionNotActive indicates a response arrived outside the active window.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrMissingPresetOrder indicates a preset response without a message.
	ErrMissingPresetOrder = errors.New("preset response requires a preset order")
	// ErrConflict indicates a store-level write conflict.
	ErrConflict = errors.New("write conflict")
	// ErrLookupFailed indicates a non-fatal identity resolution failure.
	ErrLookupFailed = errors.New("display name lookup failed")
	// ErrStoreUnavailable indicates the store adapter failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("session store is not configured")
	// ErrInvalidTimeWindow indicates end time is not after start time.
	ErrInvalidTimeWindow = errors.New("end time must be after start time")
	// ErrEmptyCompanyID indicates a missing company ID.
	ErrEmptyCompanyID = errors.New("company id is required")
	// ErrEmptyRestaurantName indicates a missing restaurant name.
	ErrEmptyRestaurantName = errors.New("restaurant name is required")
	// ErrEmptySessionID indicates a missing session ID.
	ErrEmptySessionID = errors.New("session id is required")
	// ErrEmptyUserID indicates a missing user ID.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrInvalidResponse indicates an unknown participant response.
	ErrInvalidResponse = errors.New("invalid participant response")
	// ErrInvalidRole indicates an unknown observer role.
	ErrInvalidRole = errors.New("invalid observer role")
)
