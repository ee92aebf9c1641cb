package validators

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func withRouteParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func codeOf(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	var typed *pkgerrors.Error
	require.True(t, errors.As(err, &typed), "expected *errors.Error, got %T", err)
	return typed.Code()
}

func TestParseUUIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/x", nil)

	_, err := ParseUUIDParam(withRouteParam(req, "orderId", ""), "orderId")
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))

	_, err = ParseUUIDParam(withRouteParam(req, "orderId", "not-a-uuid"), "orderId")
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))

	id, err := ParseUUIDParam(withRouteParam(req, "orderId", " 0b7c7c1e-7f1a-4a53-9f3e-1f0b4e5f9d11 "), "orderId")
	require.NoError(t, err)
	assert.Equal(t, "0b7c7c1e-7f1a-4a53-9f3e-1f0b4e5f9d11", id.String())
}

func TestParsePageParams(t *testing.T) {
	params, err := ParsePageParams(httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, params.Limit)
	assert.Empty(t, params.Cursor)

	params, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/orders?limit=5&cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 5, params.Limit)
	assert.Equal(t, "abc", params.Cursor)

	for _, raw := range []string{"0", "abc", "100000"} {
		_, err := ParsePageParams(httptest.NewRequest(http.MethodGet, "/orders?limit="+raw, nil))
		assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err), "limit=%s", raw)
	}
}

type refundBody struct {
	UpiID  string `json:"upi_id" validate:"required,upi"`
	Reason string `json:"reason" validate:"required,min=3"`
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"upi_id":"nope","reason":"ok"}`))
	var dest refundBody

	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	var typed *pkgerrors.Error
	require.True(t, errors.As(err, &typed))
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a UPI id like name@bank", details["upi_id"])
	assert.Equal(t, "must be at least 3", details["reason"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"upi_id":"buyer@okaxis","reason":"late","extra":1}`))
	var dest refundBody
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, DecodeJSONBody(req, &dest)))
}

func TestTrimTextKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "hello", TrimText("  hello  ", 0))
	assert.Equal(t, "héll", TrimText("héllo", 4))
	assert.Equal(t, "नम", TrimText(" नमस्ते ", 2))
}
