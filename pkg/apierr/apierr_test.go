package apierr

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSetsStatusFromCode(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequest(rec, "invalid_sort", "sort must be one of the allowed values")

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "invalid_sort", got.Error)
	assert.Equal(t, 400, got.Status)
}

func TestNotFoundAndInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, "rover_not_found", "no rover named x")
	assert.Equal(t, 404, rec.Code)

	rec = httptest.NewRecorder()
	Internal(rec, "internal_error", "unexpected failure")
	assert.Equal(t, 500, rec.Code)
}
