package wellbeing

import "errors"

var (
	// ErrDataUnavailable is returned when a backing store cannot be reached.
	// Risk assessment never degrades to a default score when this occurs.
	ErrDataUnavailable = errors.New("wellbeing: data unavailable")

	// ErrInvalidInput is returned for malformed entries or metrics.
	ErrInvalidInput = errors.New("wellbeing: invalid input")

	// ErrNotificationChannel marks a single recipient channel failure.
	ErrNotificationChannel = errors.New("wellbeing: notification channel failed")

	// ErrActionExecution marks a single escalation action failure.
	ErrActionExecution = errors.New("wellbeing: action execution failed")

	// ErrConcurrentEscalation is returned when an escalation state transition keeps
	// losing to concurrent writers after all retries.
	ErrConcurrentEscalation = errors.New("wellbeing: concurrent escalation conflict")
)
