package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// StatusError is returned by providers that talk plain HTTP.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status code %d: %s", e.Provider, e.StatusCode, e.Body)
}

// StatusCode extracts the upstream HTTP status from a provider error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var stErr *StatusError
	if errors.As(err, &stErr) {
		return stErr.StatusCode
	}
	return 0
}

// IsPermanent reports whether retrying err against the same provider is pointless:
// bad credentials, bad requests and exhausted quota.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusTooManyRequests:
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}
