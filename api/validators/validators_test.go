package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

type samplePayload struct {
	ListingID string `json:"listing_id" validate:"required,uuid"`
	Message   string `json:"message" validate:"max=10"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyValid(t *testing.T) {
	id := uuid.NewString()
	var payload samplePayload
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"listing_id":"`+id+`","message":"hi"}`), &payload))
	assert.Equal(t, id, payload.ListingID)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var payload samplePayload
	err := DecodeJSONBody(jsonRequest(`{"listing_id":"x","extra":1}`), &payload)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	var payload samplePayload
	err := DecodeJSONBody(jsonRequest(`{"listing_id":"nope","message":"far too long message"}`), &payload)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid uuid", details["listing_id"])
	assert.Equal(t, "must be at most 10", details["message"])
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	id := uuid.NewString()
	var payload samplePayload
	err := DecodeJSONBody(jsonRequest(`{"listing_id":"`+id+`"} {"listing_id":"`+id+`"}`), &payload)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	var payload samplePayload
	err := DecodeJSONBody(jsonRequest(`{"message":"`+strings.Repeat("x", MaxBodyBytes)+`"}`), &payload)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "request body too large", typed.Message())
}

func TestDecodeJSONBodyRequiresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)
	v, err := ParseQueryInt(req, "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=0", nil), "limit", 50, 1, 100)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil), "limit", 50, 1, 100)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryBool(t *testing.T) {
	v, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?include_own=true", nil), "include_own", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/", nil), "include_own", false)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?include_own=maybe", nil), "include_own", false)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "matchID", id.String())
	got, err := ParseUUIDParam(req, "matchID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "matchID", "bogus")
	_, err = ParseUUIDParam(req, "matchID")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abc def", SanitizeString(" abc def ", 0))
}

func TestSanitizeStringCountsRunesAndDropsControls(t *testing.T) {
	assert.Equal(t, "Ñandú", SanitizeString("Ñandú roto", 5))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\n\x00line two\x07", 0))
	assert.Equal(t, "ab", SanitizeString("ab cd", 3))
}

type enumPayload struct {
	Kind string `json:"kind" validate:"required,material_kind"`
	Type string `json:"type" validate:"account_type"`
}

func TestDecodeJSONBodyEnumRules(t *testing.T) {
	var ok enumPayload
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"kind":"e-waste","type":"farmer"}`), &ok))

	var bad enumPayload
	err := DecodeJSONBody(jsonRequest(`{"kind":"slag","type":"trader"}`), &bad)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, isMap := typed.Details().(map[string]string)
	require.True(t, isMap)
	assert.Equal(t, "must be a known material kind", details["kind"])
	assert.Equal(t, "must be a known account type", details["type"])
}

func TestDecodeJSONBodyNamesMistypedField(t *testing.T) {
	var payload samplePayload
	err := DecodeJSONBody(jsonRequest(`{"listing_id":42}`), &payload)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{"listing_id": "has the wrong type"}, typed.Details())

	err = DecodeJSONBody(jsonRequest(`{"listing_id":`), &payload)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
