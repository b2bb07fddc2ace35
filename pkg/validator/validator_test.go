package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncRequest struct {
	IndexType string   `json:"index_type" validate:"omitempty,oneof=products reviews"`
	IDs       []string `json:"ids" validate:"omitempty,max=3,dive,required"`
}

type pageRequest struct {
	Page    int    `json:"page" validate:"gte=0"`
	PerPage int    `json:"per_page" validate:"gte=1,lte=100"`
	Name    string `validate:"required"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(syncRequest{IndexType: "products"}))
	assert.NoError(t, Validate(syncRequest{}))
}

func TestValidate_OneOfUsesJSONName(t *testing.T) {
	err := Validate(syncRequest{IndexType: "orders"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be one of: products reviews", fields["index_type"])
}

func TestValidate_RangeAndFallbackName(t *testing.T) {
	err := Validate(pageRequest{Page: -1, PerPage: 500})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields["page"], "greater than or equal to 0")
	assert.Contains(t, fields["per_page"], "100")
	assert.Equal(t, "is required", fields["Name"])
	assert.Contains(t, err.Error(), "field 'per_page'")
}

func TestValidate_Dive(t *testing.T) {
	err := Validate(syncRequest{IDs: []string{"a", ""}})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Len(t, valErr.Errors, 1)
}

func TestDecodeAndValidate(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"index_type":"reviews"}`))
	var dst syncRequest
	require.NoError(t, DecodeAndValidate(r, &dst))
	assert.Equal(t, "reviews", dst.IndexType)
}

func TestDecodeAndValidate_BadJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	var dst syncRequest
	err := DecodeAndValidate(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeOptionalAndValidate_EmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	var dst syncRequest
	require.NoError(t, DecodeOptionalAndValidate(r, &dst))
	assert.Empty(t, dst.IndexType)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, DecodeOptionalAndValidate(r, &dst))
}

func TestDecodeOptionalAndValidate_Invalid(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"index_type":"carts"}`))
	var dst syncRequest
	err := DecodeOptionalAndValidate(r, &dst)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}
