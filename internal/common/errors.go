// Package common defines shared constants and sentinel errors used across
// the relay's stores, engine and transports. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Credential errors.
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")

	// Session errors.
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrAlreadyAuthenticated = errors.New("already authenticated")

	// Message and envelope validation errors.
	ErrEmptyMessage      = errors.New("empty message")
	ErrMessageTooLong    = errors.New("message too long")
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// Transport errors.
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
	ErrRateLimited    = errors.New("rate limited")

	ErrInternal = errors.New("internal error")
)
