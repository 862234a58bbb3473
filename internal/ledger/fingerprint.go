package ledger

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"heimdall/internal/domain"
)

const (
	// TypeCPU is the alert type for CPU usage breaches.
	TypeCPU = "cpu"
	// TypeMemory is the alert type for memory usage breaches.
	TypeMemory = "memory"
	// TypeConnectivity is the synthetic alert type for unreachable or unauthenticated hosts.
	TypeConnectivity = "connectivity"
)

// DiskType builds a per-mount alert type.
// Params: mount point path.
// Returns: "disk:<mount>".
func DiskType(mount string) string {
	return "disk:" + strings.TrimSpace(mount)
}

// ServiceType builds a per-service alert type.
// Params: service name.
// Returns: "service:<name>".
func ServiceType(name string) string {
	return "service:" + strings.TrimSpace(name)
}

// Fingerprint builds the deterministic alert identity.
// Params: server nickname, hostname, and alert type.
// Returns: hex SHA-1 of "nickname:hostname:type" over trimmed parts.
func Fingerprint(nickname, hostname, alertType string) domain.Fingerprint {
	nickname = strings.TrimSpace(nickname)
	hostname = strings.TrimSpace(hostname)
	alertType = strings.TrimSpace(alertType)

	canonical := make([]byte, 0, len(nickname)+len(hostname)+len(alertType)+2)
	canonical = append(canonical, nickname...)
	canonical = append(canonical, ':')
	canonical = append(canonical, hostname...)
	canonical = append(canonical, ':')
	canonical = append(canonical, alertType...)

	digest := sha1.Sum(canonical)
	var hashValue [sha1.Size * 2]byte
	hex.Encode(hashValue[:], digest[:])
	return domain.Fingerprint(hashValue[:])
}

// FingerprintOf derives the fingerprint for an observation.
func FingerprintOf(obs domain.Observation) domain.Fingerprint {
	return Fingerprint(obs.Server, obs.Hostname, obs.AlertType())
}
