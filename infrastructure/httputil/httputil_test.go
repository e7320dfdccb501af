package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 200, map[string]any{"ok": true})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestWriteText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteText(rec, 422, "limit exceeded")
	assert.Equal(t, 422, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "limit exceeded", rec.Body.String())
}

func TestWriteErrorResponseFillsCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, nil, 404, "", "not here", nil)
	assert.Contains(t, rec.Body.String(), "HTTP_404")
}

func TestReadAllStrict(t *testing.T) {
	b, err := ReadAllStrict(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = ReadAllStrict(strings.NewReader("hello world"), 5)
	require.Error(t, err)
	var tooLarge *BodyTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(5), tooLarge.Limit)
}

func TestReadAllWithLimit(t *testing.T) {
	b, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "abcd", string(b))

	_, _, err = ReadAllWithLimit(nil, 4)
	assert.Error(t, err)

	_, _, err = ReadAllWithLimit(strings.NewReader("x"), 0)
	assert.Error(t, err)
}
