package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const defaultSSHPort = 22

var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9@._-]+$`)

// ErrServerNotFound is returned when a nickname is absent from the inventory.
var ErrServerNotFound = errors.New("server not found")

// Server describes one monitored host.
// Params: nickname, address, credentials, and expected services.
// Returns: inventory entry consumed by the sampler.
type Server struct {
	Nickname string   `toml:"nickname"`
	Hostname string   `toml:"hostname"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	KeyPath  string   `toml:"key_path,omitempty"`
	Password string   `toml:"password,omitempty"`
	Services []string `toml:"services"`
}

// Address returns host:port for TCP dialing.
func (s Server) Address() string {
	port := s.Port
	if port == 0 {
		port = defaultSSHPort
	}
	return fmt.Sprintf("%s:%d", s.Hostname, port)
}

// Inventory is the ordered list of monitored servers.
type Inventory struct {
	Servers []Server `toml:"server"`
}

// LoadInventory reads and validates the server inventory.
// Params: inventory path; a missing file yields an empty inventory.
// Returns: validated inventory or read/decode/validation error.
func LoadInventory(path string) (Inventory, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Inventory{}, nil
		}
		return Inventory{}, fmt.Errorf("read inventory %q: %w", path, err)
	}
	var inv Inventory
	if err := toml.Unmarshal(body, &inv); err != nil {
		return Inventory{}, fmt.Errorf("decode inventory %q: %w", path, err)
	}
	for i := range inv.Servers {
		normalizeServer(&inv.Servers[i])
	}
	if err := inv.Validate(); err != nil {
		return Inventory{}, fmt.Errorf("inventory %q: %w", path, err)
	}
	return inv, nil
}

// SaveInventory validates and writes the inventory atomically.
// Params: inventory path and content.
// Returns: validation or write error; the file is untouched on error.
func SaveInventory(path string, inv Inventory) error {
	for i := range inv.Servers {
		normalizeServer(&inv.Servers[i])
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	body, err := toml.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	return writeFileAtomic(path, body, 0o600)
}

// Validate checks every entry and nickname uniqueness.
func (inv Inventory) Validate() error {
	seen := make(map[string]struct{}, len(inv.Servers))
	for i, server := range inv.Servers {
		if err := ValidateServer(server); err != nil {
			return fmt.Errorf("server[%d]: %w", i, err)
		}
		key := strings.ToLower(server.Nickname)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("server[%d]: nickname %q is duplicated", i, server.Nickname)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateServer checks one inventory entry.
// Params: server entry.
// Returns: first failing field as error.
func ValidateServer(server Server) error {
	if strings.TrimSpace(server.Nickname) == "" {
		return errors.New("nickname is required")
	}
	if strings.TrimSpace(server.Hostname) == "" {
		return errors.New("hostname is required")
	}
	if strings.TrimSpace(server.Username) == "" {
		return errors.New("username is required")
	}
	if server.Port < 1 || server.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", server.Port)
	}
	for _, name := range server.Services {
		if !serviceNamePattern.MatchString(name) {
			return fmt.Errorf("service name %q is invalid", name)
		}
	}
	return nil
}

// Find returns the server with the given nickname (case-insensitive).
func (inv Inventory) Find(nickname string) (Server, int, bool) {
	for i, server := range inv.Servers {
		if strings.EqualFold(server.Nickname, strings.TrimSpace(nickname)) {
			return server, i, true
		}
	}
	return Server{}, -1, false
}

// Add appends a server after validating the resulting inventory.
// Params: new entry.
// Returns: updated copy or validation error.
func (inv Inventory) Add(server Server) (Inventory, error) {
	normalizeServer(&server)
	next := Inventory{Servers: append(append([]Server(nil), inv.Servers...), server)}
	if err := next.Validate(); err != nil {
		return inv, err
	}
	return next, nil
}

// Replace swaps the entry with the given nickname.
// Params: current nickname and replacement entry (nickname may change).
// Returns: updated copy, ErrServerNotFound, or validation error.
func (inv Inventory) Replace(nickname string, server Server) (Inventory, error) {
	_, index, ok := inv.Find(nickname)
	if !ok {
		return inv, fmt.Errorf("%w: %s", ErrServerNotFound, nickname)
	}
	normalizeServer(&server)
	next := Inventory{Servers: append([]Server(nil), inv.Servers...)}
	next.Servers[index] = server
	if err := next.Validate(); err != nil {
		return inv, err
	}
	return next, nil
}

// Remove drops the entry with the given nickname.
// Params: nickname.
// Returns: updated copy or ErrServerNotFound.
func (inv Inventory) Remove(nickname string) (Inventory, error) {
	_, index, ok := inv.Find(nickname)
	if !ok {
		return inv, fmt.Errorf("%w: %s", ErrServerNotFound, nickname)
	}
	next := Inventory{Servers: make([]Server, 0, len(inv.Servers)-1)}
	next.Servers = append(next.Servers, inv.Servers[:index]...)
	next.Servers = append(next.Servers, inv.Servers[index+1:]...)
	return next, nil
}

func normalizeServer(server *Server) {
	server.Nickname = strings.TrimSpace(server.Nickname)
	server.Hostname = strings.TrimSpace(server.Hostname)
	server.Username = strings.TrimSpace(server.Username)
	server.KeyPath = strings.TrimSpace(server.KeyPath)
	if server.Port == 0 {
		server.Port = defaultSSHPort
	}
	server.Services = trimList(server.Services)
}
