package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lectern-dev/lectern/internal/defra"
	"github.com/lectern-dev/lectern/internal/home"
	"github.com/lectern-dev/lectern/internal/server/endpoints"
)

// testServer boots a full server, Docker container included, on
// dedicated ports. The returned stop function cancels the server and
// waits for Start to return.
type testServer struct {
	srv     *Server
	baseURL string
	stop    func() error
}

func startTestServer(t *testing.T, httpPort, defraPort, containerName string) *testServer {
	t.Helper()

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	removeContainer(containerName)

	srv, err := New(Config{
		Host: "127.0.0.1",
		Port: httpPort,
		Home: h,
		DefraConfig: defra.DockerConfig{
			ContainerName: containerName,
			HostPort:      defraPort,
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%s", httpPort)
	if err := awaitHTTP(baseURL, 60*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not come up: %v", err)
	}

	ts := &testServer{
		srv:     srv,
		baseURL: baseURL,
		stop: func() error {
			cancel()
			select {
			case err := <-errCh:
				return err
			case <-time.After(30 * time.Second):
				return fmt.Errorf("server did not shut down")
			}
		},
	}
	t.Cleanup(func() {
		_ = ts.stop()
		removeContainer(containerName)
	})
	return ts
}

func awaitHTTP(baseURL string, timeout time.Duration) error {
	hc := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := hc.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("no 200 from %s/health after %s", baseURL, timeout)
}

func removeContainer(name string) {
	mgr, err := defra.NewDockerManager(defra.DockerConfig{ContainerName: name})
	if err != nil {
		return
	}
	defer mgr.Close()
	_ = mgr.Remove(context.Background())
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

// TestServer_Lifecycle exercises boot, health surfaces, service wiring,
// and shutdown against a real DefraDB container. Requires Docker.
func TestServer_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := startTestServer(t, "18080", "19281", "lectern-defra-server-test")

	t.Run("health", func(t *testing.T) {
		var health endpoints.HealthResponse
		if code := getJSON(t, ts.baseURL+"/health", &health); code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
		if health.Status != "ok" {
			t.Errorf("Status = %q, want ok", health.Status)
		}
	})

	t.Run("ready includes defra", func(t *testing.T) {
		var health endpoints.HealthResponse
		if code := getJSON(t, ts.baseURL+"/ready", &health); code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
		if health.Status != "ok" || health.Defra != "ok" {
			t.Errorf("ready = %+v", health)
		}
	})

	t.Run("status reports container", func(t *testing.T) {
		var status endpoints.StatusResponse
		if code := getJSON(t, ts.baseURL+"/api/status", &status); code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
		if status.Defra.Container != string(defra.StatusRunning) {
			t.Errorf("container = %q, want running", status.Defra.Container)
		}
		if status.Defra.Health != "healthy" {
			t.Errorf("health = %q, want healthy", status.Defra.Health)
		}
	})

	t.Run("services wired", func(t *testing.T) {
		if ts.srv.DefraClient() == nil {
			t.Fatal("DefraClient() is nil")
		}
		if err := ts.srv.DefraClient().HealthCheck(context.Background()); err != nil {
			t.Errorf("DefraDB health check: %v", err)
		}
		if ts.srv.Library() == nil {
			t.Error("Library() is nil after start")
		}
		if ts.srv.Analyzer() == nil {
			t.Error("Analyzer() is nil after start")
		}
		if !ts.srv.IsRunning() {
			t.Error("IsRunning() = false while serving")
		}
	})

	t.Run("clean shutdown", func(t *testing.T) {
		if err := ts.stop(); err != nil {
			t.Logf("Start returned: %v", err)
		}
		if ts.srv.IsRunning() {
			t.Error("IsRunning() = true after shutdown")
		}

		mgr, err := defra.NewDockerManager(defra.DockerConfig{ContainerName: "lectern-defra-server-test"})
		if err != nil {
			t.Fatalf("manager: %v", err)
		}
		defer mgr.Close()
		if status, err := mgr.Status(context.Background()); err != nil {
			t.Fatalf("status: %v", err)
		} else if status == defra.StatusRunning {
			t.Error("DefraDB container still running after shutdown")
		}
	})
}

// TestServer_DoubleStart verifies Start rejects a second call while the
// server is running. Requires Docker.
func TestServer_DoubleStart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := startTestServer(t, "18082", "19283", "lectern-defra-double-test")

	if err := ts.srv.Start(context.Background()); err == nil {
		t.Error("second Start() should return an error")
	}
}

// TestServer_PidFileGuard verifies a second server over the same home
// directory refuses to start while the first holds the pid file.
// Requires Docker.
func TestServer_PidFileGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	removeContainer("lectern-defra-pid-test")
	t.Cleanup(func() { removeContainer("lectern-defra-pid-test") })

	first, err := New(Config{
		Host: "127.0.0.1",
		Port: "18083",
		Home: h,
		DefraConfig: defra.DockerConfig{
			ContainerName: "lectern-defra-pid-test",
			HostPort:      "19284",
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- first.Start(ctx) }()
	if err := awaitHTTP("http://127.0.0.1:18083", 60*time.Second); err != nil {
		cancel()
		t.Fatalf("first server did not come up: %v", err)
	}

	second, err := New(Config{
		Host: "127.0.0.1",
		Port: "18084",
		Home: h,
		DefraConfig: defra.DockerConfig{
			ContainerName: "lectern-defra-pid-test",
			HostPort:      "19284",
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Error("second server over the same home should refuse to start")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(30 * time.Second):
		t.Fatal("first server did not shut down")
	}
}
