package e2e

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"heimdall/internal/app"
	"heimdall/internal/config"
	"heimdall/internal/logging"
	"heimdall/internal/sampler"
	"heimdall/test/testutil"
)

// workspace holds config and inventory files for one scenario.
type workspace struct {
	dir       string
	config    string
	inventory string
}

// newWorkspace writes config and inventory bodies into a temp dir.
// Params: test handle, config TOML, and inventory TOML.
// Returns: workspace with absolute file paths.
func newWorkspace(t *testing.T, configBody, inventoryBody string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:       dir,
		config:    filepath.Join(dir, "heimdall.toml"),
		inventory: filepath.Join(dir, "servers.toml"),
	}
	ws.write(t, ws.config, configBody)
	ws.write(t, ws.inventory, inventoryBody)
	return ws
}

func (ws workspace) write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (ws workspace) paths() app.Paths {
	return app.Paths{Config: ws.config, Inventory: ws.inventory}
}

// newRuntime builds a runtime for the workspace.
// Params: test handle, workspace, and optional sampler (nil uses SSH).
// Returns: runtime; the test fails on setup error.
func newRuntime(t *testing.T, ws workspace, sample app.Sampler) *app.Runtime {
	t.Helper()
	rt, err := app.NewRuntime(context.Background(), ws.paths(), app.RuntimeOptions{
		Logger:  logging.Discard(),
		Sampler: sample,
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	return rt
}

// runService starts service in background with cancellable context.
// Params: test handle and runtime.
// Returns: cancel callback and done channel with Run result.
func runService(t *testing.T, rt *app.Runtime) (context.CancelFunc, <-chan error) {
	t.Helper()

	service, err := app.NewService(rt)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()
	return cancel, done
}

// waitReady waits for /readyz endpoint to return 200.
func waitReady(t *testing.T, port int) {
	t.Helper()
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitFor(t, 8*time.Second, func() bool {
		response, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	})
}

// waitServiceStop asserts service Run exits without error after cancellation.
func waitServiceStop(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case runErr := <-done:
		if runErr != nil {
			t.Fatalf("service run error: %v", runErr)
		}
	case <-time.After(8 * time.Second):
		t.Fatalf("service did not stop after cancel")
	}
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}

func freePort(t *testing.T) int {
	t.Helper()
	port, err := testutil.FreePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	return port
}

// cpuSampler reports a fixed CPU reading for every server.
type cpuSampler struct {
	mu  sync.Mutex
	cpu float64
}

func (s *cpuSampler) set(cpu float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu = cpu
}

func (s *cpuSampler) Sample(_ context.Context, server config.Server) (sampler.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sampler.Report{
		Server: server,
		CPU:    sampler.Reading{Value: s.cpu},
		Memory: sampler.Reading{Value: 10},
	}, nil
}
