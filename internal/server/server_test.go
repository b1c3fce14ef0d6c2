package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"photoshare/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		Mongo: config.MongoConfig{
			URI:               "mongodb://127.0.0.1:1/photoshare",
			Database:          "photoshare",
			MaxAttempts:       1,
			RetryDelay:        time.Millisecond,
			ReconnectInterval: time.Hour,
			ConnectTimeout:    50 * time.Millisecond,
			OperationTimeout:  50 * time.Millisecond,
		},
		Storage: config.StorageConfig{Backend: config.StorageLocal, UploadDir: t.TempDir(), URLPrefix: "/uploads"},
		App: config.AppConfig{
			MaxUploadSize: 5 * 1024 * 1024,
			ImageSize:     400,
			JPEGQuality:   85,
			CORSOrigins:   []string{"http://localhost:5173"},
		},
		Profile: config.ProfileConfig{DefaultFirstName: "Kheepo", DefaultLastName: "Motsinoi", DefaultImage: "/kheepo-profile.jpg"},
	}
}

func TestNewServesFromFallbackBeforeStoreConnects(t *testing.T) {
	srv, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"firstName":"Kheepo"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestNewRejectsUnusableUploadDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.UploadDir = ""

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}
