package fetcher

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAPIKey 表示 oracle 拒绝了 API key。
	ErrInvalidAPIKey = errors.New("oracle rejected api key")
	// ErrRateLimited 表示 oracle 返回了限流消息。
	ErrRateLimited = errors.New("oracle rate limit reached")
)

// APIError is a success-shaped response whose status field signals failure.
type APIError struct {
	Message string
	Result  string
	kind    error
}

func (e *APIError) Error() string {
	detail := e.Result
	if detail == "" {
		detail = e.Message
	}
	return fmt.Sprintf("oracle api error: %s", detail)
}

// Unwrap exposes ErrInvalidAPIKey / ErrRateLimited when the text matched one of them.
func (e *APIError) Unwrap() error {
	return e.kind
}

// HTTPStatusError is a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("oracle http error (%d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("oracle http error (%d)", e.StatusCode)
}

// DecodeError wraps a response body that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode oracle response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newAPIError(message, result string) *APIError {
	apiErr := &APIError{Message: message, Result: result}
	text := strings.ToLower(message + " " + result)
	switch {
	case strings.Contains(text, "invalid api key"):
		apiErr.kind = ErrInvalidAPIKey
	case strings.Contains(text, "rate limit"):
		apiErr.kind = ErrRateLimited
	}
	return apiErr
}
