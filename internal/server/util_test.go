package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
		{"/v1/api//", "/v1/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParsePID(t *testing.T) {
	id, err := parsePID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "qwerty", "1.5", "99999999999999999999"} {
		_, err := parsePID(raw)
		assert.Error(t, err, raw)
	}
}

func bindErr(t *testing.T, body string, dst any) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	err := c.ShouldBindJSON(dst)
	require.Error(t, err)
	return err
}

func TestBindMessage(t *testing.T) {
	var cr createReq
	msg := bindMessage(bindErr(t, `{"type":"FIFO"}`, &cr))
	assert.Contains(t, msg, "task: must not be blank")
	assert.Contains(t, msg, "priority: must not be blank")

	var rr removeReq
	msg = bindMessage(bindErr(t, `{"list":[]}`, &rr))
	assert.Equal(t, "list: must not be empty", msg)

	rr = removeReq{}
	msg = bindMessage(bindErr(t, `{"list":"x"}`, &rr))
	assert.Contains(t, msg, "list: unexpected string")

	rr = removeReq{}
	msg = bindMessage(bindErr(t, `{"list":`, &rr))
	assert.True(t, strings.HasPrefix(msg, "malformed request body"), msg)
}

func TestWriteJSONSetsContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	writeJSON(c, http.StatusTeapot, map[string]int{"a": 1})
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":1}`, rec.Body.String())
}
