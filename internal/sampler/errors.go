package sampler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"heimdall/internal/sshclient"
)

var (
	// ErrEmptyOutput reports a command that printed nothing.
	ErrEmptyOutput = errors.New("empty command output")
	// ErrUnexpectedOutput reports output that does not have the expected shape.
	ErrUnexpectedOutput = errors.New("unexpected command output")
)

// Stage names the host check step that failed before any metric was read.
type Stage string

const (
	// StageProbe is the raw TCP liveness probe.
	StageProbe Stage = "probe"
	// StageSession is the remote shell connect and login.
	StageSession Stage = "session"
)

// FailReason categorizes why a host could not be checked.
type FailReason int

const (
	FailUnknown FailReason = iota
	FailTimeout
	FailRefused
	FailUnreachable
	FailAuth
	FailHostKey
)

// String returns a human-readable description of the failure reason.
func (r FailReason) String() string {
	switch r {
	case FailTimeout:
		return "connection timed out"
	case FailRefused:
		return "connection refused"
	case FailUnreachable:
		return "host unreachable"
	case FailAuth:
		return "authentication failed"
	case FailHostKey:
		return "host key verification failed"
	default:
		return "unknown error"
	}
}

// ConnectivityError is a host-level failure; it short-circuits the host check.
type ConnectivityError struct {
	Stage  Stage
	Reason FailReason
	Cause  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s failed: %s (%v)", e.Stage, e.Reason, e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Cause
}

// AlertMessage is the text of the synthetic connectivity alert.
func (e *ConnectivityError) AlertMessage() string {
	if e.Stage == StageProbe {
		return fmt.Sprintf("Server is not reachable: %s", e.Reason)
	}
	return fmt.Sprintf("Error checking server: %s", e.Reason)
}

// newConnectivityError categorizes err for the given stage.
func newConnectivityError(stage Stage, err error) *ConnectivityError {
	return &ConnectivityError{Stage: stage, Reason: categorize(err), Cause: err}
}

// categorize maps a dial or handshake error to a FailReason.
func categorize(err error) FailReason {
	if err == nil {
		return FailUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailTimeout
	}
	if errors.Is(err, sshclient.ErrNoAuthMethods) {
		return FailAuth
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return FailTimeout
	case strings.Contains(msg, "connection refused"):
		return FailRefused
	case strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "host is down"),
		strings.Contains(msg, "no such host"):
		return FailUnreachable
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "no supported methods"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "authentication failed"):
		return FailAuth
	case strings.Contains(msg, "host key"), strings.Contains(msg, "knownhosts"):
		return FailHostKey
	default:
		return FailUnknown
	}
}
