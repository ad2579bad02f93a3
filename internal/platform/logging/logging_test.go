package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logg.SetOutput(&buf)
	t.Cleanup(func() { logg.SetOutput(newLogger().Out) })
	return &buf
}

func TestLogError_Fields(t *testing.T) {
	buf := capture(t)

	LogError("ledger", "Apply", "stats update failed", map[string]int{"available": -1}, errors.New("deadlock"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ledger", got["module"])
	assert.Equal(t, "Apply", got["funcName"])
	assert.Equal(t, "stats update failed", got["context"])
	assert.Equal(t, "deadlock", got["msg"])
	assert.Equal(t, "error", got["level"])
	assert.NotNil(t, got["data"])
}

func TestMiddleware_LogsStatus(t *testing.T) {
	buf := capture(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/1", nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "/ping/:id", got["path"])
	assert.EqualValues(t, http.StatusTeapot, got["status"])
	assert.Equal(t, "warning", got["level"])
}
