package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(requestIDHeader, "req-42")
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "quantity"})
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Code)
	assert.Equal(t, "bad input", body.Message)
	assert.Equal(t, "req-42", body.RequestID)
	assert.Equal(t, map[string]any{"field": "quantity"}, body.Details)
}

func TestWriteErrorStatusPerCode(t *testing.T) {
	cases := []struct {
		code       pkgerrors.Code
		status     int
		retryAfter string
	}{
		{pkgerrors.CodeStateConflict, http.StatusUnprocessableEntity, ""},
		{pkgerrors.CodeInsufficientBalance, http.StatusUnprocessableEntity, ""},
		{pkgerrors.CodeForbidden, http.StatusForbidden, ""},
		{pkgerrors.CodeNotFound, http.StatusNotFound, ""},
		{pkgerrors.CodeConflict, http.StatusConflict, "1"},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, pkgerrors.New(tc.code, "nope"))
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			assert.Equal(t, "nope", decodeError(t, w).Message)
		})
	}
}

func TestWriteErrorHidesServerFaults(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	w := httptest.NewRecorder()
	WriteError(context.Background(), logg, w, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	assert.Equal(t, "internal server error", body.Message)
	assert.Nil(t, body.Details)
	assert.Empty(t, body.RequestID)
	assert.Contains(t, buf.String(), "request.error")

	w = httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "redis unreachable"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "dependency unavailable", decodeError(t, w).Message)
}

func TestWriteErrorLogsClientErrorsAsWarnings(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "listing not found"))
	assert.Contains(t, buf.String(), "request.rejected")
	assert.Contains(t, buf.String(), `"http_status":404`)
	assert.NotContains(t, buf.String(), "request.error")
}
