package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/runlogd/internal/appender"
	"github.com/fyrsmithlabs/runlogd/internal/config"
	api "github.com/fyrsmithlabs/runlogd/internal/http"
	"github.com/fyrsmithlabs/runlogd/internal/registry"
	"github.com/fyrsmithlabs/runlogd/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startAPI(t *testing.T) *Client {
	t.Helper()
	cfg := config.NewDefaultAppenderConfig()
	cfg.Mode = "immediate"
	cfg.Parallel = true
	app := appender.New(registry.New(cfg, sink.NewLogSink(zap.NewNop())), nil)

	server, err := api.NewServer(app, zap.NewNop(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = app.Close(context.Background(), true)
	})
	return NewClient(ts.URL + "/")
}

func TestClient_RoundTrip(t *testing.T) {
	c := startAPI(t)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	resp, err := c.Submit(ctx, api.SubmitRequest{ThreadKey: "w 1", Kind: "start_run", EntityID: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)

	added, err := c.RecordLineage(ctx, "w 2", "w 1")
	require.NoError(t, err)
	assert.True(t, added)

	list, err := c.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, list.Channels, 1)
	assert.Equal(t, "w 1", list.Default)

	snap, err := c.Channel(ctx, "w 1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.RunID)

	st, err := c.TestCase(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.RunID)

	offset, err := c.TimeOffset(ctx, "w 1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), offset.Seconds(), 5)

	sd, err := c.Shutdown(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sd.Destroyed)
}

func TestClient_StatusError(t *testing.T) {
	c := startAPI(t)

	_, err := c.Channel(context.Background(), "missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)

	err = c.Destroy(context.Background(), "missing")
	require.ErrorAs(t, err, &se)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url).Channels(context.Background())
	assert.ErrorContains(t, err, "request failed")
}
