// Package core provides core types and interfaces for the devotional service.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeMalformedResponse indicates an upstream payload that failed to decode
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	// ErrorTypeOfflineNoCache indicates connectivity loss with no usable cached entry
	ErrorTypeOfflineNoCache ErrorType = "offline_no_cache"
	// ErrorTypeOffline indicates connectivity loss. The orchestrator intercepts it
	// to try the stale cache before surfacing ErrorTypeOfflineNoCache.
	ErrorTypeOffline ErrorType = "offline"
	// ErrorTypeTimeout indicates the upstream call exceeded its deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeAuthentication indicates rejected upstream credentials (401/403)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeServer indicates a non-200 upstream status or other transport failure
	ErrorTypeServer ErrorType = "server_error"
	// ErrorTypeCancelled indicates the caller cancelled the request
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeCacheCorrupt indicates undecodable cached bytes. Internal only.
	ErrorTypeCacheCorrupt ErrorType = "cache_corrupt"
	// ErrorTypeInvalidRequest indicates a client error
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// StatusClientClosedRequest is the non-standard status used for cancelled requests.
const StatusClientClosedRequest = 499

// FetchError is the base error type for every failure surfaced by the service.
type FetchError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code the HTTP API answers with for this error.
// Upstream status codes are never echoed back; they stay in StatusCode.
func (e *FetchError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeMalformedResponse, ErrorTypeServer, ErrorTypeAuthentication:
		return http.StatusBadGateway
	case ErrorTypeOfflineNoCache, ErrorTypeOffline:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeCancelled:
		return StatusClientClosedRequest
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the user-facing description for the error type.
func (e *FetchError) UserMessage() string {
	switch e.Type {
	case ErrorTypeMalformedResponse:
		return "The server response format was invalid."
	case ErrorTypeOfflineNoCache, ErrorTypeOffline:
		return "You appear to be offline and no saved devotional is available for this verse."
	case ErrorTypeTimeout:
		return "The request timed out. Please try again."
	case ErrorTypeAuthentication:
		return "API key is invalid or has expired."
	case ErrorTypeServer:
		if e.StatusCode != 0 {
			return fmt.Sprintf("Server returned an error with status code: %d", e.StatusCode)
		}
		return "Received an invalid response from the server."
	case ErrorTypeCancelled:
		return "The request was cancelled."
	default:
		return e.Message
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *FetchError) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"type":    e.Type,
		"message": e.UserMessage(),
	}
	if e.Type == ErrorTypeServer && e.StatusCode != 0 {
		body["upstream_status"] = e.StatusCode
	}
	return map[string]interface{}{"error": body}
}

// NewMalformedResponseError creates an error for an undecodable upstream payload
func NewMalformedResponseError(provider, message string, err error) *FetchError {
	return &FetchError{
		Type:     ErrorTypeMalformedResponse,
		Message:  message,
		Provider: provider,
		Err:      err,
	}
}

// NewOfflineError creates a connectivity-loss error
func NewOfflineError(provider string, err error) *FetchError {
	return &FetchError{
		Type:     ErrorTypeOffline,
		Message:  "no network connectivity",
		Provider: provider,
		Err:      err,
	}
}

// NewOfflineNoCacheError creates the error surfaced when connectivity is lost and
// no cached entry exists for key.
func NewOfflineNoCacheError(key string, err error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeOfflineNoCache,
		Message: "offline and no cached devotional for " + key,
		Err:     err,
	}
}

// NewTimeoutError creates a deadline-exceeded error
func NewTimeoutError(provider string, err error) *FetchError {
	return &FetchError{
		Type:     ErrorTypeTimeout,
		Message:  "request timed out",
		Provider: provider,
		Err:      err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(provider string, message string) *FetchError {
	return &FetchError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Provider:   provider,
	}
}

// NewServerError creates an error for a non-200 upstream status
func NewServerError(provider string, statusCode int, message string, err error) *FetchError {
	return &FetchError{
		Type:       ErrorTypeServer,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewCancelledError creates an error for a cancelled request
func NewCancelledError(provider string, err error) *FetchError {
	return &FetchError{
		Type:     ErrorTypeCancelled,
		Message:  "request cancelled",
		Provider: provider,
		Err:      err,
	}
}

// NewCacheCorruptError creates an error for cached bytes that fail to decode
func NewCacheCorruptError(key string, err error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeCacheCorrupt,
		Message: "cached entry for " + key + " is corrupt",
		Err:     err,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeInvalidRequest,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *FetchError {
	return &FetchError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// ParseProviderError maps a non-200 upstream response to a FetchError
func ParseProviderError(provider string, statusCode int, body []byte) *FetchError {
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewAuthenticationError(provider, message)
	default:
		return NewServerError(provider, statusCode, message, nil)
	}
}

// ClassifyTransportError maps an error returned by http.Client.Do (or by the
// context guarding it) to a FetchError. Deadline expiry is a timeout, never
// connectivity loss.
func ClassifyTransportError(provider string, err error) *FetchError {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(provider, err)
	case errors.Is(err, context.Canceled):
		return NewCancelledError(provider, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(provider, err)
	}

	if IsConnectivityError(err) {
		return NewOfflineError(provider, err)
	}

	return NewServerError(provider, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
}

// IsConnectivityError reports whether err means the host could not be reached at all.
func IsConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
		syscall.ENETDOWN,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// IsType reports whether err is a FetchError of type t.
func IsType(err error, t ErrorType) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Type == t
}
