package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/netactivity/probe"
	"github.com/nomis52/netactivity/server/cron"
	"github.com/nomis52/netactivity/server/handlers"
	"github.com/nomis52/netactivity/server/types"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func configFor(targetURL string, extra string) string {
	return fmt.Sprintf(`
logging:
  level: error
  output: stderr
probes:
  concurrency: 2
  targets:
    - name: version
      url: %s/version
      shape: object
    - name: raw
      url: %s/raw
%s`, targetURL, targetURL, extra)
}

func newTargetServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"3.1"}`))
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newServer(t *testing.T, content string) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, content)
	srv, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, path
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func post(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func TestServer_Routes(t *testing.T) {
	targets := newTargetServer(t)
	srv, _ := newServer(t, configFor(targets.URL, ""))
	h := srv.Handler()

	w := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "idle", w.Header().Get(handlers.StatusHeader))

	var status map[string]any
	w = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "idle", status["status"])
	assert.Equal(t, "scrape", status["metrics_mode"])
	assert.Equal(t, false, status["next_run"].(map[string]any)["scheduled"])

	w = post(t, h, "/api/probe")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return srv.Sweep().State == probe.SweepStateIdle && len(srv.History()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	w = get(t, h, "/api/status")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	probes := status["probes"].([]any)
	require.Len(t, probes, 2)
	assert.Equal(t, "raw", probes[0].(map[string]any)["target"])
	assert.Equal(t, "ok", probes[0].(map[string]any)["outcome"])
	assert.Equal(t, "version", probes[1].(map[string]any)["target"])

	w = get(t, h, "/api/history")
	require.Equal(t, http.StatusOK, w.Code)
	var history []probe.SweepRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)

	w = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `netactivity_requests_total{outcome="ok",shape="data"} 1`)
	assert.Contains(t, body, `netactivity_requests_total{outcome="ok",shape="object"} 1`)
	assert.Contains(t, body, "netactivity_inflight_requests 0")

	w = get(t, h, "/api/config")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "name: version")

	w = post(t, h, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_Schedule(t *testing.T) {
	targets := newTargetServer(t)
	srv, _ := newServer(t, configFor(targets.URL, `  schedule: "0 3 * * *"`))

	next := srv.NextRun()
	require.NotNil(t, next)
	assert.Equal(t, 3, next.Hour())
}

func TestServer_InvalidSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, configFor("http://localhost", `  schedule: "every day"`))
	_, err := New(path)
	assert.ErrorIs(t, err, cron.ErrInvalidCronSpec)
}

func TestServer_MissingConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServer_PushMode(t *testing.T) {
	received := make(chan string, 64)
	vm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case received <- r.URL.Path:
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer vm.Close()

	targets := newTargetServer(t)
	srv, _ := newServer(t, configFor(targets.URL, "")+fmt.Sprintf(`
monitoring:
  push_url: %s
`, vm.URL))
	h := srv.Handler()

	assert.Equal(t, types.MetricsModePush, srv.Properties().MetricsMode)

	// No scrape endpoint in push mode.
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)

	require.NoError(t, srv.prober.Sweep(context.Background()))
	select {
	case path := <-received:
		assert.Equal(t, "/api/v1/write", path)
	case <-time.After(5 * time.Second):
		t.Fatal("no samples pushed")
	}
}

func TestServer_Reload(t *testing.T) {
	targets := newTargetServer(t)
	srv, path := newServer(t, configFor(targets.URL, ""))
	h := srv.Handler()

	require.NoError(t, srv.prober.Sweep(context.Background()))
	require.Len(t, srv.Results(), 2)

	writeConfig(t, path, fmt.Sprintf(`
logging:
  level: error
  output: stderr
probes:
  targets:
    - name: raw
      url: %s/raw
`, targets.URL))
	w := post(t, h, "/api/reload")
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Len(t, srv.Config().Probes.Targets, 1)
	require.Len(t, srv.Results(), 1)
	assert.Equal(t, "raw", srv.Results()[0].Target)

	// A broken file keeps the running config.
	writeConfig(t, path, "probes:\n  concurrency: -1\n")
	w = post(t, h, "/api/reload")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, srv.Config().Probes.Targets, 1)
}

func TestServer_StatusStream(t *testing.T) {
	release := make(chan struct{})
	blocking := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer blocking.Close()
	defer close(release)

	srv, _ := newServer(t, fmt.Sprintf(`
logging:
  level: error
  output: stderr
probes:
  targets:
    - name: slow
      url: %s
`, blocking.URL))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/status/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	next := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(5 * time.Second):
			t.Fatal("no status event")
			return ""
		}
	}

	assert.Equal(t, `{"status":"idle"}`, next())

	probeResp, err := http.Post(ts.URL+"/api/probe", "application/json", nil)
	require.NoError(t, err)
	io.Copy(io.Discard, probeResp.Body)
	probeResp.Body.Close()
	assert.Equal(t, http.StatusAccepted, probeResp.StatusCode)
	assert.Equal(t, `{"status":"running"}`, next())

	release <- struct{}{}
	assert.Equal(t, `{"status":"idle"}`, next())
}

func TestServer_Run(t *testing.T) {
	targets := newTargetServer(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, configFor(targets.URL, ""))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv, err := New(path, WithListener(listener))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	url := "http://" + listener.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
