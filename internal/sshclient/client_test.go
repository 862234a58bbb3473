package sshclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"heimdall/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type commandReply struct {
	stdout string
	status uint32
	hang   bool
}

// testServer is a minimal exec-only SSH server.
type testServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	replies  map[string]commandReply
	wg       sync.WaitGroup
}

func newTestServer(t *testing.T, password string, replies map[string]commandReply) *testServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("permission denied")
		},
	}
	cfg.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &testServer{listener: listener, config: cfg, replies: replies}
	srv.wg.Add(1)
	go srv.serve()
	t.Cleanup(func() {
		_ = listener.Close()
		srv.wg.Wait()
	})
	return srv
}

func (s *testServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *testServer) handle(conn net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.session(channel, requests)
	}
}

func (s *testServer) session(channel ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}
		var payload struct{ Command string }
		_ = ssh.Unmarshal(req.Payload, &payload)
		_ = req.Reply(true, nil)

		reply, ok := s.replies[payload.Command]
		if !ok {
			reply = commandReply{status: 127}
		}
		if reply.hang {
			continue
		}
		_, _ = channel.Write([]byte(reply.stdout))
		_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{reply.status}))
		_ = channel.Close()
		return
	}
}

func testSettings(port int, password string) Settings {
	return Settings{
		Host:     "127.0.0.1",
		Port:     port,
		User:     "monitor",
		KeyPath:  filepath.Join(os.TempDir(), "heimdall-missing-key"),
		Password: password,
		Timeout:  2 * time.Second,
	}
}

func TestDialAndRun(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "secret", map[string]commandReply{
		"hostname": {stdout: "web1.internal\n"},
		"false":    {status: 1},
	})

	client, err := Dial(context.Background(), testSettings(srv.port(), "secret"))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.port())), client.Address)

	name, err := client.Hostname(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "web1.internal", name)

	result, err := client.Run(context.Background(), "false")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)

	result, err = client.Run(context.Background(), "no-such-command")
	require.NoError(t, err)
	assert.Equal(t, 127, result.ExitCode)
}

func TestRunHonoursContextDeadline(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "secret", map[string]commandReply{
		"sleep 600": {hang: true},
	})
	client, err := Dial(context.Background(), testSettings(srv.port(), "secret"))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	result, err := client.Run(ctx, "sleep 600")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, result.ExitCode)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestDialWrongPasswordIsHandshakeError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "secret", nil)
	_, err := Dial(context.Background(), testSettings(srv.port(), "wrong"))
	require.Error(t, err)

	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, StageHandshake, dialErr.Stage)
	assert.Contains(t, err.Error(), "unable to authenticate")
}

func TestDialRefusedIsConnectError(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	_, err = Dial(context.Background(), testSettings(port, "secret"))
	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, StageConnect, dialErr.Stage)
}

func TestBuildClientConfig(t *testing.T) {
	t.Parallel()

	t.Run("no auth", func(t *testing.T) {
		settings := testSettings(22, "")
		_, err := buildClientConfig(settings)
		assert.ErrorIs(t, err, ErrNoAuthMethods)
	})

	t.Run("missing user", func(t *testing.T) {
		settings := testSettings(22, "pw")
		settings.User = ""
		_, err := buildClientConfig(settings)
		assert.Error(t, err)
	})

	t.Run("key file", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		block, err := ssh.MarshalPrivateKey(priv, "")
		require.NoError(t, err)
		keyPath := filepath.Join(t.TempDir(), "id_ed25519")
		require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

		settings := testSettings(22, "")
		settings.KeyPath = keyPath
		cfg, err := buildClientConfig(settings)
		require.NoError(t, err)
		assert.Len(t, cfg.Auth, 1)
		assert.Equal(t, "monitor", cfg.User)
	})

	t.Run("bad known_hosts", func(t *testing.T) {
		settings := testSettings(22, "pw")
		settings.KnownHostsPath = filepath.Join(t.TempDir(), "absent")
		_, err := buildClientConfig(settings)
		assert.Error(t, err)
	})
}

func TestSettingsResolveFromSSHConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config")
	body := "Host web1\n  HostName 10.0.0.5\n  Port 2222\n  User deploy\n  IdentityFile /keys/web1\n\nMatch host *.corp\n  User nobody\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	base := SettingsFor(config.Server{Hostname: "web1", Port: 22}, config.SamplerConfig{ConnectTimeoutSec: 5, UseSSHConfig: true})
	base.SSHConfigPath = cfgPath
	resolved := base.Resolve()

	assert.Equal(t, "10.0.0.5", resolved.Host)
	assert.Equal(t, 2222, resolved.Port)
	assert.Equal(t, "deploy", resolved.User)
	assert.Equal(t, []string{"/keys/web1"}, resolved.IdentityFiles)
	assert.Equal(t, 5*time.Second, resolved.Timeout)

	explicit := SettingsFor(config.Server{Hostname: "web1", Port: 2200, Username: "ops"}, config.SamplerConfig{UseSSHConfig: true})
	explicit.SSHConfigPath = cfgPath
	resolved = explicit.Resolve()
	assert.Equal(t, 2200, resolved.Port)
	assert.Equal(t, "ops", resolved.User)

	disabled := SettingsFor(config.Server{Hostname: "web1"}, config.SamplerConfig{UseSSHConfig: false})
	disabled.SSHConfigPath = cfgPath
	resolved = disabled.Resolve()
	assert.Equal(t, "web1", resolved.Host)
	assert.Equal(t, 22, resolved.Port)
}

func TestShellQuote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"nginx", "'nginx'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ShellQuote(tc.in))
	}
}
