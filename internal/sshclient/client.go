package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoAuthMethods is returned when neither a usable key nor a password is available.
var ErrNoAuthMethods = errors.New("no ssh auth methods available")

// Stage names the connection step that failed.
type Stage string

const (
	// StageConnect covers the TCP connect.
	StageConnect Stage = "connect"
	// StageHandshake covers SSH negotiation and authentication.
	StageHandshake Stage = "handshake"
	// StageSetup covers local preparation before any network I/O.
	StageSetup Stage = "setup"
)

// DialError reports a failed connection with the step that failed.
type DialError struct {
	Stage   Stage
	Address string
	Err     error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Stage, e.Address, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one remote command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Client wraps an SSH connection with its resolved address.
type Client struct {
	conn    *ssh.Client
	Address string
}

// Dial opens an authenticated SSH connection.
// Params: context bounding the connect and settings for the host.
// Returns: connected client or *DialError.
func Dial(ctx context.Context, settings Settings) (*Client, error) {
	settings = settings.Resolve()
	address := settings.Address()

	clientConfig, err := buildClientConfig(settings)
	if err != nil {
		return nil, &DialError{Stage: StageSetup, Address: address, Err: err}
	}

	dialer := net.Dialer{Timeout: settings.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &DialError{Stage: StageConnect, Address: address, Err: err}
	}
	if settings.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(settings.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: StageHandshake, Address: address, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{conn: ssh.NewClient(sshConn, chans, reqs), Address: address}, nil
}

// buildClientConfig collects auth methods and the host key policy.
func buildClientConfig(settings Settings) (*ssh.ClientConfig, error) {
	if strings.TrimSpace(settings.User) == "" {
		return nil, errors.New("ssh user is required")
	}

	var (
		methods []ssh.AuthMethod
		keyErrs []error
	)
	for _, path := range settings.keyCandidates() {
		signer, err := loadSigner(path)
		if err != nil {
			if path == settings.KeyPath {
				keyErrs = append(keyErrs, err)
			}
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if settings.Password != "" {
		password := settings.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(methods) == 0 {
		if len(keyErrs) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoAuthMethods, errors.Join(keyErrs...))
		}
		return nil, ErrNoAuthMethods
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // empty known_hosts accepts new hosts
	if settings.KnownHostsPath != "" {
		callback, err := knownhosts.New(settings.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %q: %w", settings.KnownHostsPath, err)
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            settings.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         settings.Timeout,
	}, nil
}

// loadSigner reads one private key file.
func loadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %q: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("key %q is passphrase protected", path)
		}
		return nil, fmt.Errorf("parse key %q: %w", path, err)
	}
	return signer, nil
}

// Run executes one command in a fresh session.
// Params: context bounding the command and command line.
// Returns: captured output and exit status; a non-zero exit is not an error.
func (c *Client) Run(ctx context.Context, cmd string) (Result, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return Result{ExitCode: -1}, fmt.Errorf("run %q: %w", cmd, ctx.Err())
	case err = <-done:
	}

	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("run %q: %w", cmd, err)
	}
	return result, nil
}

// Hostname returns the remote host's own name.
func (c *Client) Hostname(ctx context.Context) (string, error) {
	result, err := c.Run(ctx, "hostname")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("hostname exited with status %d", result.ExitCode)
	}
	name := strings.TrimSpace(string(result.Stdout))
	if name == "" {
		return "", errors.New("hostname returned empty output")
	}
	return name, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ShellQuote wraps s in single quotes for literal use in a remote command.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
