package huddle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

func do(t *testing.T, e *Engine, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestEngine_Responses(t *testing.T) {
	e := New(WithMode("test"))
	r := e.RouterGroup()
	r.GET("/ok", func(c *Context) { c.Success(map[string]int{"n": 1}) })
	r.GET("/missing", func(c *Context) { c.RespondError(errors.ErrNotFound) })
	r.GET("/boom", func(c *Context) { panic("boom") })
	r.GET("/plain", func(c *Context) { c.RespondError(assert.AnError) })

	w, resp := do(t, e, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp.Message)
	assert.Equal(t, map[string]any{"n": float64(1)}, resp.Data)

	w, resp = do(t, e, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrNotFound.Code, resp.Code)

	w, resp = do(t, e, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrServer.Code, resp.Code)

	w, _ = do(t, e, "/plain")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type pageReq struct {
	ID    string `uri:"id" binding:"required"`
	Limit int    `form:"limit"`
}

type pageResp struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

func TestHandle_Binding(t *testing.T) {
	e := New(WithMode("test"))
	Handle[pageReq, pageResp](e.RouterGroup().GET, "/items/:id", func(c *Context, req *pageReq) (*pageResp, error) {
		return &pageResp{ID: req.ID, Limit: req.Limit}, nil
	})

	w, resp := do(t, e, "/items/abc?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"id": "abc", "limit": float64(5)}, resp.Data)

	w, resp = do(t, e, "/items/abc?limit=many")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrBadRequest.Code, resp.Code)
}

func TestEngine_LoggerAndTraceID(t *testing.T) {
	e := New(WithMode("test"), WithLogger(logger.NewNop()))
	e.Use(func(c *Context) { SetContextTraceID(c, "t-1") }, Logger(logger.NewNop(), &LoggerConfig{ExcludePaths: []string{"/health"}}))
	e.RouterGroup().GET("/x", func(c *Context) { c.Fail(1234, "nope") })

	_, resp := do(t, e, "/x")
	assert.Equal(t, 1234, resp.Code)
	assert.Equal(t, "t-1", resp.TraceID)
}

func TestEngine_ShutdownHooksRunInOrder(t *testing.T) {
	e := New(WithMode("test"))
	var order []int
	e.OnShutdown(func(context.Context) error { order = append(order, 1); return nil })
	e.OnShutdown(func(context.Context) error { order = append(order, 2); return assert.AnError })
	e.OnShutdown(func(context.Context) error { order = append(order, 3); return nil })

	err := e.Shutdown(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTLSReady(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")

	assert.False(t, tlsReady(TLSConfig{}))
	assert.False(t, tlsReady(TLSConfig{CertFile: cert, KeyFile: key}))

	require.NoError(t, os.WriteFile(cert, []byte("x"), 0o600))
	assert.False(t, tlsReady(TLSConfig{CertFile: cert, KeyFile: key}))

	require.NoError(t, os.WriteFile(key, []byte("x"), 0o600))
	assert.True(t, tlsReady(TLSConfig{CertFile: cert, KeyFile: key}))
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"coded", errors.ErrNotFound, http.StatusNotFound, 1004},
		{"wrapped", errors.ErrTooManyRequests.WithMessage("slow down"), http.StatusTooManyRequests, 1029},
		{"plain", os.ErrClosed, errors.ErrServer.HttpCode, errors.ErrServer.Code},
		{"nil", nil, errors.ErrServer.HttpCode, errors.ErrServer.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := ErrorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
			assert.Nil(t, resp.Data)
			assert.Empty(t, resp.TraceID)
		})
	}
}
