package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Storage errors
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Reconciliation errors
	ErrInvalidTransition  = errors.New("status transition not allowed from current status")
	ErrInvalidStatus      = errors.New("target status not allowed")
	ErrActiveRefundExists = errors.New("a refund request already exists for this payment")
	ErrNoExternalRefund   = errors.New("refund has no gateway refund id")
	ErrInvalidPrice       = errors.New("invalid service price format")

	// Gateway errors
	ErrGatewayFailure   = errors.New("payment gateway call failed")
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// One-time codes
	ErrOTPMismatch = errors.New("one-time code does not match")
	ErrOTPExpired  = errors.New("one-time code expired or never issued")
	ErrRateLimited = errors.New("too many requests")
)
