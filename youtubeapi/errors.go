package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorClass represents whether an error should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the call should be retried (transient errors).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the call should not be retried.
	ErrorClassFatal
	// ErrorClassUnknown is only returned for a nil error.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	// ErrNoCredentials means neither an API key nor a refresh token was configured.
	ErrNoCredentials = errors.New("youtube: no API key or OAuth refresh token configured")
	// ErrChannelNotFound is returned when channels.list has no item for the id.
	ErrChannelNotFound = errors.New("youtube: channel not found")
	// ErrQuotaExhausted is returned once the local quota budget is spent.
	ErrQuotaExhausted = errors.New("youtube: local quota budget exhausted")
)

// ClassifyError sorts API failures into retryable and fatal.
//
// Fatal: bad requests, auth failures, daily quota exhaustion, missing
// resources, cancelled contexts and the local quota budget.
// Retryable: per-user rate limits, 429, 5xx and network failures. Errors that
// match nothing known are retried.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrQuotaExhausted) {
		return ErrorClassFatal
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
				return ErrorClassRetryable
			case "quotaExceeded", "dailyLimitExceeded", "forbidden", "keyInvalid", "channelNotFound", "videoNotFound":
				return ErrorClassFatal
			}
		}
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return ErrorClassRetryable
		case gerr.Code >= 400:
			return ErrorClassFatal
		}
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"quota", "api key not valid", "invalid_grant", "unauthorized", "forbidden", "not found"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}
	return ErrorClassRetryable
}
