package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Admission
	ErrOrgNotFound    = errors.New("organization not found")
	ErrPlanNotFound   = errors.New("plan not found")
	ErrQuotaExceeded  = errors.New("usage quota exceeded")
	ErrInvalidJobType = errors.New("invalid job type")

	// Job lifecycle
	ErrInvalidTransition = errors.New("invalid job status transition")

	// Webhooks
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrEndpointDisabled = errors.New("webhook endpoint is disabled")

	// Work queue
	ErrNoTask       = errors.New("queue: no task available")
	ErrTaskNotFound = errors.New("queue: task not found")
	ErrUnknownLane  = errors.New("queue: unknown lane")
	ErrLeaseLost    = errors.New("queue: task lease lost")

	// Auth
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrAPIKeyLimit   = errors.New("api key limit reached for plan")
	ErrUnauthorized  = errors.New("unauthorized")

	// Persistence plumbing
	ErrInvalidExecContext = errors.New("invalid db execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
