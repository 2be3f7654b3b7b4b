package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Transport-level failures produced by Client.
var (
	ErrInvalidURL = errors.New("invalid url")
	ErrNoData     = errors.New("response contained no data")
)

// DecodeError reports a payload that could not be (de)serialized.
type DecodeError struct {
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s: %v", e.Detail, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	if detail := apiErrorDetail(e.Body); detail != "" {
		return fmt.Sprintf("http status %d: %s", e.Code, detail)
	}
	return fmt.Sprintf("http status %d", e.Code)
}

// TransportError wraps failures below HTTP: DNS, TLS, resets, timeouts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline being exceeded.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// API-level failures produced by ChatClient.
var (
	ErrMissingAPIKey   = errors.New("api key is missing")
	ErrUnauthorized    = errors.New("unauthorized: invalid api key")
	ErrRateLimited     = errors.New("rate limited")
	ErrQuotaExceeded   = errors.New("quota exceeded or access forbidden")
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// ServerError reports a 5xx response from a provider.
type ServerError struct {
	Code   int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("provider server error (HTTP %d)", e.Code)
	}
	return fmt.Sprintf("provider server error (HTTP %d): %s", e.Code, e.Detail)
}

// translate maps HTTP status failures onto the API taxonomy. Everything
// else is returned unchanged.
func translate(err error) error {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch {
	case statusErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case statusErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case statusErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	case statusErr.Code >= http.StatusInternalServerError:
		return &ServerError{Code: statusErr.Code, Detail: apiErrorDetail(statusErr.Body)}
	}
	return err
}

// Describe turns an error from this package into text fit for a user.
func Describe(err error) string {
	var (
		serverErr    *ServerError
		decodeErr    *DecodeError
		transportErr *TransportError
		statusErr    *StatusError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAPIKey):
		return "No API key is configured for this provider."
	case errors.Is(err, ErrUnauthorized):
		return "The API key was rejected. Check it in settings."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Wait a moment and try again."
	case errors.Is(err, ErrQuotaExceeded):
		return "Quota exceeded or access to this model is forbidden."
	case errors.Is(err, ErrInvalidResponse):
		return "The provider returned an answer that could not be used."
	case errors.As(err, &serverErr):
		return fmt.Sprintf("The provider had a server error (HTTP %d).", serverErr.Code)
	case errors.Is(err, ErrInvalidURL):
		return "The provider endpoint URL is invalid."
	case errors.Is(err, ErrNoData):
		return "The provider sent an empty response."
	case errors.As(err, &decodeErr):
		return "The provider response could not be read."
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return "The request timed out."
		}
		return "Network error. Check your connection."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Request failed with HTTP %d.", statusErr.Code)
	}
	return err.Error()
}

// ApiErrorResponse covers both the flat and the OpenAI-style nested
// error bodies providers send.
type ApiErrorResponse struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func apiErrorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	apiErr := ApiErrorResponse{}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			return apiErr.Error.Message
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	detail := strings.TrimSpace(string(body))
	if runes := []rune(detail); len(runes) > 200 {
		detail = string(runes[:200]) + "..."
	}
	return detail
}
