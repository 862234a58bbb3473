package domain

import (
	"fmt"
	"strings"
	"time"
)

// Fingerprint identifies one logical alert condition across restarts.
// Params: hex digest of server nickname, hostname, and alert type.
// Returns: stable key for ledger partitions.
type Fingerprint string

// LifecycleKind classifies one alert transition.
// Params: new/recurring/resolved constants.
// Returns: lifecycle label used by ledger decisions and notifications.
type LifecycleKind string

const (
	// KindNew marks the first observation of a fingerprint in either partition.
	KindNew LifecycleKind = "new"
	// KindRecurring marks a fingerprint seen before, active or previously resolved.
	KindRecurring LifecycleKind = "recurring"
	// KindResolved marks an active condition that stopped breaching.
	KindResolved LifecycleKind = "resolved"
)

// AlertRecord stores persisted alert metadata.
// Params: identity, descriptive metadata, and lifecycle timestamps.
// Returns: one ledger entry in the active or resolved partition.
type AlertRecord struct {
	Fingerprint   Fingerprint `json:"fingerprint"`
	Server        string      `json:"server"`
	Hostname      string      `json:"hostname"`
	Type          string      `json:"type"`
	Message       string      `json:"message"`
	FirstDetected time.Time   `json:"first_detected"`
	LastDetected  time.Time   `json:"last_detected"`
	LastNotified  time.Time   `json:"last_notified"`
	ResolvedTime  *time.Time  `json:"resolved_time,omitempty"`
}

// Clone returns a deep copy of the record.
// Params: none.
// Returns: record with its own ResolvedTime pointer.
func (r AlertRecord) Clone() AlertRecord {
	if r.ResolvedTime != nil {
		resolved := *r.ResolvedTime
		r.ResolvedTime = &resolved
	}
	return r
}

// Observation describes one breach reported by a sweep.
// Params: server nickname, hostname, alert type, and human message.
// Returns: ledger input for RecordObservation.
type Observation struct {
	Server   string
	Hostname string
	Type     string
	Message  string
}

// AlertType returns the explicit type or derives it from the message's first word.
// Params: none.
// Returns: lower-case alert type, "unknown" when nothing is available.
func (o Observation) AlertType() string {
	if typ := strings.TrimSpace(o.Type); typ != "" {
		return typ
	}
	fields := strings.Fields(o.Message)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(strings.Trim(fields[0], ":,."))
}

// Decision is the ledger's answer to one observation.
// Params: fingerprint, lifecycle kind, cooldown outcome, and stored record.
// Returns: instructions for the notification layer.
type Decision struct {
	Fingerprint  Fingerprint
	Kind         LifecycleKind
	ShouldNotify bool
	Record       AlertRecord
}

// LedgerSnapshot is the persisted form of both ledger partitions.
// Params: active and resolved maps keyed by fingerprint.
// Returns: document written by state stores.
type LedgerSnapshot struct {
	Active   map[Fingerprint]AlertRecord `json:"active_alerts"`
	Resolved map[Fingerprint]AlertRecord `json:"resolved_alerts"`
}

// NewLedgerSnapshot returns an empty snapshot with allocated maps.
func NewLedgerSnapshot() LedgerSnapshot {
	return LedgerSnapshot{
		Active:   map[Fingerprint]AlertRecord{},
		Resolved: map[Fingerprint]AlertRecord{},
	}
}

// Clone returns a deep copy of both partitions.
// Params: none.
// Returns: snapshot safe for independent mutation.
func (s LedgerSnapshot) Clone() LedgerSnapshot {
	out := LedgerSnapshot{
		Active:   make(map[Fingerprint]AlertRecord, len(s.Active)),
		Resolved: make(map[Fingerprint]AlertRecord, len(s.Resolved)),
	}
	for fp, record := range s.Active {
		out.Active[fp] = record.Clone()
	}
	for fp, record := range s.Resolved {
		out.Resolved[fp] = record.Clone()
	}
	return out
}

// Validate checks partition disjointness and key consistency.
// Params: none.
// Returns: first inconsistency found, nil for a well-formed snapshot.
func (s LedgerSnapshot) Validate() error {
	for fp, record := range s.Active {
		if record.Fingerprint != fp {
			return fmt.Errorf("active_alerts[%s] carries fingerprint %q", fp, record.Fingerprint)
		}
		if _, dup := s.Resolved[fp]; dup {
			return fmt.Errorf("fingerprint %s is both active and resolved", fp)
		}
	}
	for fp, record := range s.Resolved {
		if record.Fingerprint != fp {
			return fmt.Errorf("resolved_alerts[%s] carries fingerprint %q", fp, record.Fingerprint)
		}
		if record.ResolvedTime == nil {
			return fmt.Errorf("resolved_alerts[%s] has no resolved_time", fp)
		}
	}
	return nil
}
