// Package common defines shared constants and sentinel errors used across the
// engine's components. Callers match these values with errors.Is; every error
// crossing a package boundary wraps exactly one of them.
package common

import "errors"

var (
	// Authentication / session errors.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")

	// Access control.
	ErrPermissionDenied = errors.New("permission denied")

	// Cryptography. ErrTamperDetected is fatal to the single item it occurred
	// on, never to the engine. ErrKeyUnavailable is recoverable: the sync
	// engine queues a re-fetch of the wrapped key.
	ErrTamperDetected = errors.New("tamper detected")
	ErrKeyUnavailable = errors.New("key unavailable")
	ErrUnwrapFailed   = errors.New("key unwrap failed")

	// Network. Transient failures are retried with backoff; fatal ones halt
	// sync until the caller re-authenticates.
	ErrNetworkTransient = errors.New("transient network failure")
	ErrNetworkFatal     = errors.New("fatal network failure")

	// Persistence.
	ErrStorage = errors.New("storage failure")

	// Generic flow control.
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrValidation      = errors.New("validation error")
	ErrInviteExpired   = errors.New("invite expired")
)
