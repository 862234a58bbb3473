package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// FreePort reserves a local TCP port and returns it to the caller.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartLocalNATSServer starts nats-server with JetStream for ledger store tests.
// Params: test handle; the test is skipped when nats-server is not installed.
// Returns: server URL and idempotent stop callback.
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	binary, err := exec.LookPath("nats-server")
	if err != nil {
		tb.Skipf("nats-server is required for integration test: %v", err)
	}
	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}

	cmd := exec.Command(binary, "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("start nats-server: %v", err)
	}

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() { terminate(cmd) })
	}
	if !waitForNATS(url, 8*time.Second) {
		stop()
		tb.Fatalf("nats did not become ready at %s", url)
	}
	return url, stop
}

func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func waitForNATS(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(url)
		if err == nil {
			nc.Close()
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
