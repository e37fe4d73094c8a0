package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer  xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestErrorHandler_MapsTypedErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.NewNop()))
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperrors.ErrRoomNotFound) })
	r.GET("/invalid", func(c *gin.Context) { _ = c.Error(apperrors.Validation("message", "must not be empty")) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(assert.AnError) })

	cases := []struct {
		path string
		code int
		body string
	}{
		{"/missing", http.StatusNotFound, `{"error":"room not found","code":404}`},
		{"/invalid", http.StatusUnprocessableEntity, `{"error":"must not be empty","code":422,"field":"message"}`},
		{"/boom", http.StatusInternalServerError, `{"error":"internal server error","code":500}`},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.code, w.Code, tc.path)
		assert.JSONEq(t, tc.body, w.Body.String(), tc.path)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://app.local"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://app.local")
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.local")
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
