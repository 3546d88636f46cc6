// Package apierr holds the caller-visible error kinds of the pair price
// engine and their mapping to HTTP statuses and messages.
package apierr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnknownAsset is returned when an identifier does not resolve or is
	// not listed in the catalog.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrProviderFetchFailed is returned when every fan-out attempt failed.
	ErrProviderFetchFailed = errors.New("unable to fetch prices")

	// ErrInsufficientFreshData is returned when one side has no provider
	// quote inside the staleness window.
	ErrInsufficientFreshData = errors.New("insufficient fresh data")

	// ErrDegenerateDivision is returned when an estimate evaluates to zero.
	ErrDegenerateDivision = errors.New("degenerate division")
)

// Status maps an engine error to an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownAsset), errors.Is(err, ErrInsufficientFreshData):
		return http.StatusNotFound
	case errors.Is(err, ErrDegenerateDivision):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProviderFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for err. Wrapped context (provider
// payloads, upstream statuses) is never included.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrUnknownAsset):
		return "asset doesn't exist"
	case errors.Is(err, ErrProviderFetchFailed):
		return "unable to fetch prices"
	case errors.Is(err, ErrInsufficientFreshData):
		return "no sufficiently fresh price data"
	case errors.Is(err, ErrDegenerateDivision):
		return "unable to get pair price"
	default:
		return "internal server error"
	}
}
