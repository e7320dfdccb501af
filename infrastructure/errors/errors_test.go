package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceErrorFormatting(t *testing.T) {
	err := New(ErrCodeInvalidCursor, "invalid cursor", http.StatusBadRequest)
	assert.Equal(t, "[CURSOR_1001] invalid cursor", err.Error())

	wrapped := Wrap(ErrCodeProviderFailure, "fetch failed", http.StatusBadGateway, fmt.Errorf("boom"))
	assert.Contains(t, wrapped.Error(), "boom")
	assert.Equal(t, "boom", wrapped.Unwrap().Error())
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, InvalidCursor().HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, ProviderFailure("open", fmt.Errorf("x")).HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, ScriptFailure(fmt.Errorf("x")).HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, LimitExceeded("time").HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, HandleClash().HTTPStatus)
	assert.Equal(t, http.StatusTooManyRequests, RateLimitExceeded(10, "1s").HTTPStatus)
}

func TestGetServiceErrorThroughChain(t *testing.T) {
	inner := LimitExceeded("heap")
	outer := fmt.Errorf("request failed: %w", inner)

	got := GetServiceError(outer)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeLimitExceeded, got.Code)
	assert.True(t, IsServiceError(outer))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(outer))
}

func TestGetHTTPStatusFallback(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(fmt.Errorf("plain")))
}

func TestWithDetails(t *testing.T) {
	err := LimitExceeded("time").WithDetails("configured", "500ms")
	assert.Equal(t, "time", err.Details["limit"])
	assert.Equal(t, "500ms", err.Details["configured"])
}
