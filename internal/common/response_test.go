package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/common"
)

func TestDataAndPageEnvelopes(t *testing.T) {
	rr := httptest.NewRecorder()
	common.Data(rr, http.StatusCreated, map[string]string{"id": "sub-1"})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"id":"sub-1"}}`, rr.Body.String())

	items, meta := common.Paginate([]string{"a", "b", "c"}, 2, 2)
	rr = httptest.NewRecorder()
	common.Page(rr, items, meta)
	require.JSONEq(t, `{"data":["c"],"pagination":{"page":2,"per_page":2,"total_items":3}}`, rr.Body.String())
}
