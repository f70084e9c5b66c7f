package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("environment only", func(t *testing.T) {
		t.Setenv("RUNLOGD_SERVER_HTTP_PORT", "9200")
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 9200, cfg.Server.Port)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("appender:\n  parallel: true\n"), 0o600))
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.True(t, cfg.Appender.Parallel)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("RUNLOGD_APPENDER_MAX_NUMBER_LOG_EVENTS", "0")
		_, err := loadConfig("")
		assert.Error(t, err)
	})
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Setenv("RUNLOGD_SERVER_HTTP_PORT", "8084")
	t.Setenv("RUNLOGD_OBSERVABILITY_LOG_LEVEL", "error")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://localhost:8084/health")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 50*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}
