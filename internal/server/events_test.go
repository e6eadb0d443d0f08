package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readFrame returns the next SSE frame without its blank terminator line.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return strings.Join(lines, "\n")
		}
		lines = append(lines, line)
	}
}

func openStream(t *testing.T, ts *httptest.Server, path string) (*http.Response, *bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return resp, bufio.NewReader(resp.Body), cancel
}

func TestEvents_InitialFrameThenUpdate(t *testing.T) {
	h := newHarness(t, time.Minute)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	resp, r, _ := openStream(t, ts, "/api/events/playback")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	first := readFrame(t, r)
	require.True(t, strings.HasPrefix(first, "event: playback\ndata: "), first)
	var initial map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(first, "event: playback\ndata: ")), &initial))
	assert.Equal(t, float64(-1), initial["lastPlayedIndex"])

	// the stream is subscribed once the initial frame has arrived
	assert.Equal(t, 1, h.broadcaster.ClientCount("playback"))

	put, err := http.NewRequest(http.MethodPut, ts.URL+"/api/playback-position",
		strings.NewReader(`{"lastPlayedIndex": 5, "notePath": "a&b.md", "deviceId": "phone"}`))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(put)
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.NewDecoder(putResp.Body).Decode(&res))
	putResp.Body.Close()
	assert.Equal(t, float64(1), res["broadcastCount"])

	next := readFrame(t, r)
	require.True(t, strings.HasPrefix(next, "event: playback\ndata: "), next)
	data := strings.TrimPrefix(next, "event: playback\ndata: ")
	assert.NotContains(t, data, "\n")
	assert.Contains(t, data, `"notePath":"a&b.md"`)

	var update map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &update))
	assert.Equal(t, float64(5), update["lastPlayedIndex"])
	assert.Equal(t, "phone", update["deviceId"])
	assert.Equal(t, res["timestamp"], update["timestamp"])
}

func TestEvents_ChannelsAreIsolated(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	_, r, _ := openStream(t, ts, "/api/events/scroll")
	first := readFrame(t, r)
	assert.True(t, strings.HasPrefix(first, "event: scroll\ndata: "), first)

	rec := h.doJSON(http.MethodPut, "/api/playback-position", `{"lastPlayedIndex": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["broadcastCount"])

	// nothing but keep-alives on the scroll stream
	assert.Equal(t, ": keep-alive", readFrame(t, r))
}

func TestEvents_KeepAliveAndDisconnect(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	_, r, cancel := openStream(t, ts, "/api/events/scroll")
	readFrame(t, r)

	assert.Equal(t, ": keep-alive", readFrame(t, r))
	assert.Equal(t, ": keep-alive", readFrame(t, r))

	rec := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, float64(1), decode(t, rec)["sse_clients"])

	cancel()
	require.Eventually(t, func() bool {
		return h.broadcaster.TotalClients() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
