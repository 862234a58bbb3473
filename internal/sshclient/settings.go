package sshclient

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"heimdall/internal/config"

	"github.com/kevinburke/ssh_config"
)

const defaultPort = 22

// Settings holds resolved connection parameters for one host.
type Settings struct {
	Alias          string
	Host           string
	Port           int
	User           string
	KeyPath        string
	IdentityFiles  []string
	Password       string
	KnownHostsPath string
	Timeout        time.Duration
	UseSSHConfig   bool
	SSHConfigPath  string
}

// Address returns the host:port string for dialing.
func (s Settings) Address() string {
	port := s.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// SettingsFor builds connection settings for one inventory entry.
// Params: server entry and sampler transport options.
// Returns: settings before ssh_config resolution.
func SettingsFor(server config.Server, cfg config.SamplerConfig) Settings {
	return Settings{
		Alias:          server.Hostname,
		Host:           server.Hostname,
		Port:           server.Port,
		User:           server.Username,
		KeyPath:        expandPath(server.KeyPath),
		Password:       server.Password,
		KnownHostsPath: expandPath(cfg.KnownHosts),
		Timeout:        time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		UseSSHConfig:   cfg.UseSSHConfig,
	}
}

// Resolve fills blanks from ~/.ssh/config when enabled.
// Explicit inventory values always win over ssh_config values.
func (s Settings) Resolve() Settings {
	if s.Port == 0 {
		s.Port = defaultPort
	}
	if !s.UseSSHConfig {
		return s
	}
	path := s.SSHConfigPath
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "config")
	}
	content, err := preprocessSSHConfig(path)
	if err != nil {
		return s
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return s
	}

	alias := s.Alias
	if alias == "" {
		alias = s.Host
	}
	if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
		s.Host = hostname
	}
	if s.Port == defaultPort {
		if raw, _ := cfg.Get(alias, "Port"); raw != "" {
			if port, err := strconv.Atoi(raw); err == nil && port > 0 {
				s.Port = port
			}
		}
	}
	if s.User == "" {
		if user, _ := cfg.Get(alias, "User"); user != "" {
			s.User = user
		}
	}
	if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" && identity != "~/.ssh/identity" {
		s.IdentityFiles = append(s.IdentityFiles, expandPath(identity))
	}
	return s
}

// keyCandidates lists key files in auth order: explicit, ssh_config, defaults.
func (s Settings) keyCandidates() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	add(s.KeyPath)
	for _, path := range s.IdentityFiles {
		add(path)
	}
	if s.KeyPath == "" {
		for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
			add(filepath.Join(homeDir(), ".ssh", name))
		}
	}
	return out
}

// preprocessSSHConfig returns the config content up to the first Match block,
// which the ssh_config decoder does not support.
func preprocessSSHConfig(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			break
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n")), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
