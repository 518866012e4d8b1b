package httpgin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONWithCache(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/events/1", nil)

	writeJSONWithCache(c, http.StatusOK, map[string]any{"id": 1}, "public, max-age=60")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"id":1}`, w.Body.String())

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Contains(t, tag, `W/"`)

	// Same payload, matching If-None-Match: 304 with no body.
	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = httptest.NewRequest(http.MethodGet, "/events/1", nil)
	c2.Request.Header.Set("If-None-Match", tag)

	writeJSONWithCache(c2, http.StatusOK, map[string]any{"id": 1}, "public, max-age=60")
	// Outside a running engine gin defers the status write; flush it so the
	// recorder sees what a real request would.
	c2.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNotModified, w2.Code)
	assert.Empty(t, w2.Body.String())

	// Different payload yields a different tag.
	w3 := httptest.NewRecorder()
	c3, _ := gin.CreateTestContext(w3)
	c3.Request = httptest.NewRequest(http.MethodGet, "/events/2", nil)
	c3.Request.Header.Set("If-None-Match", tag)

	writeJSONWithCache(c3, http.StatusOK, map[string]any{"id": 2}, "")

	assert.Equal(t, http.StatusOK, w3.Code)
	assert.NotEqual(t, tag, w3.Header().Get("ETag"))
}
