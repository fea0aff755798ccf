package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/dirview/pkg/browse"
	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/storage/memory"
)

func newTestRouter(t *testing.T, mode string) (*mux.Router, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), make([]byte, 10), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), make([]byte, 20), 0o644))

	cfg := Config{
		Root:     root,
		Mode:     mode,
		Workers:  1,
		Store:    config.StoreMemory,
		SizeMode: config.DefaultSizeMode,
	}
	require.NoError(t, cfg.Validate())

	store := memory.New()
	hub := browse.NewHub()
	p, computeMonitor, err := InitializePresenter(cfg, store, hub)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go RunPresenter(ctx, p, &wg)
	go RunHub(ctx, hub, &wg)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	router := mux.NewRouter()
	SetupRoutes(router, Deps{
		Handler:   InitializeHandlers(cfg, p),
		Hub:       hub,
		Presenter: p,
		Store:     store,
		Monitor:   computeMonitor,
	}, "8080")
	return router, cfg.Root
}

func serve(router *mux.Router, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_ListTriggerRelease(t *testing.T) {
	router, root := newTestRouter(t, config.ModeSync)

	rr := serve(router, http.MethodGet, "/v1/entries", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	body, err := json.Marshal(browse.PathRequest{Path: filepath.Join(root, "sub")})
	require.NoError(t, err)
	rr = serve(router, http.MethodPost, "/v1/entries/size", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var trig browse.TriggerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &trig))
	require.Equal(t, "20 bytes", trig.Display)

	rr = serve(router, http.MethodPost, "/v1/entries/release", body)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(router, http.MethodGet, "/v1/entries/size", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRoutes_AsyncTrigger(t *testing.T) {
	router, _ := newTestRouter(t, config.ModeAsync)

	rr := serve(router, http.MethodPost, "/v1/entries/size", []byte(`{"path":"sub"}`))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Eventually(t, func() bool {
		rr := serve(router, http.MethodGet, "/v1/entries", nil)
		var resp browse.ListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			return false
		}
		return len(resp.Rows) > 0 && resp.Rows[0].Cells["size"] == "20 bytes"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoutes_Health(t *testing.T) {
	router, root := newTestRouter(t, config.ModeSync)

	serve(router, http.MethodPost, "/v1/entries/size", []byte(`{"path":"sub"}`))

	rr := serve(router, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp.Status)
	require.Equal(t, root, resp.Root)
	require.Equal(t, config.ModeSync, resp.Queue.Mode)
	require.EqualValues(t, 1, resp.Compute.Completed)
	require.NotNil(t, resp.Store)
	require.EqualValues(t, 1, resp.Store.Records)
}

func TestRoutes_Metrics(t *testing.T) {
	router, _ := newTestRouter(t, config.ModeSync)

	serve(router, http.MethodPost, "/v1/entries/size", []byte(`{"path":"sub"}`))

	rr := serve(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "dirview_size_computations_total")
	require.Contains(t, rr.Body.String(), "dirview_cell_notifications_total")
}

func TestCORS(t *testing.T) {
	router, _ := newTestRouter(t, config.ModeSync)

	req := httptest.NewRequest(http.MethodOptions, "/v1/entries/size", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "http://localhost:8080", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/entries", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoadConfig(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DIRVIEW_ROOT", root)
	t.Setenv("DIRVIEW_PORT", "9999")
	t.Setenv("DIRVIEW_MODE", config.ModeSync)
	t.Setenv("DIRVIEW_WORKERS", "not-a-number")
	t.Setenv("DIRVIEW_STORE", config.StoreBadger)

	cfg := LoadConfig()
	require.Equal(t, root, cfg.Root)
	require.Equal(t, "9999", cfg.Port)
	require.Equal(t, config.ModeSync, cfg.Mode)
	require.Equal(t, config.DefaultWorkers, cfg.Workers)
	require.Equal(t, config.StoreBadger, cfg.Store)
	require.Equal(t, config.DefaultSizeMode, cfg.SizeMode)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Root:     t.TempDir(),
			Mode:     config.ModeAsync,
			Workers:  1,
			Store:    config.StoreMemory,
			SizeMode: "apparent",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = "eventually" }},
		{"store", func(c *Config) { c.Store = "redis" }},
		{"size mode", func(c *Config) { c.SizeMode = "blocks" }},
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"missing root", func(c *Config) { c.Root = filepath.Join(c.Root, "gone") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestInitializeStore(t *testing.T) {
	for _, backend := range []string{config.StoreMemory, config.StoreBadger} {
		t.Run(backend, func(t *testing.T) {
			store, err := InitializeStore(Config{Store: backend, MaxMemoryMB: config.DefaultMaxMemoryMB})
			require.NoError(t, err)
			defer store.Close()

			stats, err := store.Stats(context.Background())
			require.NoError(t, err)
			require.Zero(t, stats.Records)
		})
	}
}
