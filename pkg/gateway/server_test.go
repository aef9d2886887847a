package gateway

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	ready := false
	s := NewServer(Options{Port: 5050, Ready: func() bool { return ready }})

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = do(t, s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestCallbackDelegatesToWebhook(t *testing.T) {
	called := false
	s := NewServer(Options{Webhook: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte("OK"))
	})})

	rec := do(t, s, http.MethodPost, "/callback")
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCallbackWithoutLine(t *testing.T) {
	s := NewServer(Options{})
	rec := do(t, s, http.MethodPost, "/callback")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestImagesServedByBaseName(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "Pic")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "bear.png"), []byte("png-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("nope"), 0o644))

	s := NewServer(Options{ImageDir: imageDir})

	rec := do(t, s, http.MethodGet, "/Pic/bear.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/Pic/..%2Fsecret.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/Pic/missing.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddr(t *testing.T) {
	s := NewServer(Options{Host: "0.0.0.0", Port: 5050})
	assert.Equal(t, "0.0.0.0:5050", s.Addr())
}
