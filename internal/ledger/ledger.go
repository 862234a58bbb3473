package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"heimdall/internal/domain"
	"heimdall/internal/state"
)

// ErrPersist wraps every failure to write the snapshot through to storage.
var ErrPersist = errors.New("ledger persistence failed")

// Options configure ledger policy.
// Params: notification cooldown and resolved-partition retention (0 keeps forever).
// Returns: ledger behavior knobs.
type Options struct {
	Cooldown          time.Duration
	ResolvedRetention time.Duration
}

// Ledger owns the active and resolved alert partitions.
// Params: snapshot store for write-through persistence and policy options.
// Returns: serialized alert lifecycle bookkeeping.
type Ledger struct {
	mu    sync.Mutex
	store state.Store
	snap  domain.LedgerSnapshot
	opts  Options
}

// Open loads the persisted snapshot and validates it.
// Params: context, snapshot store, and policy options.
// Returns: ready ledger or load/validation error.
func Open(ctx context.Context, store state.Store, opts Options) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if opts.Cooldown <= 0 {
		return nil, errors.New("ledger cooldown must be >0")
	}
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return &Ledger{store: store, snap: snap.Clone(), opts: opts}, nil
}

// SetOptions swaps policy options, used after a config reload.
func (l *Ledger) SetOptions(opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if opts.Cooldown > 0 {
		l.opts = opts
	}
}

// Cooldown returns the active notification cooldown.
func (l *Ledger) Cooldown() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts.Cooldown
}

// RecordObservation classifies a breach and updates the active partition.
// Params: context, alert fingerprint, descriptive metadata, and observation time.
// Returns: decision with lifecycle kind and cooldown outcome, or persistence error.
func (l *Ledger) RecordObservation(ctx context.Context, fp domain.Fingerprint, obs domain.Observation, now time.Time) (domain.Decision, error) {
	var decision domain.Decision
	err := l.mutate(ctx, now, func(snap *domain.LedgerSnapshot, cooldown time.Duration) {
		decision = domain.Decision{Fingerprint: fp}
		if current, ok := snap.Active[fp]; ok {
			current.LastDetected = now
			current.Message = obs.Message
			decision.Kind = domain.KindRecurring
			if now.Sub(current.LastNotified) >= cooldown {
				current.LastNotified = now
				decision.ShouldNotify = true
			}
			snap.Active[fp] = current
			decision.Record = current.Clone()
			return
		}

		record := domain.AlertRecord{
			Fingerprint:   fp,
			Server:        obs.Server,
			Hostname:      obs.Hostname,
			Type:          obs.AlertType(),
			Message:       obs.Message,
			FirstDetected: now,
			LastDetected:  now,
			LastNotified:  now,
		}
		decision.Kind = domain.KindNew
		if _, seen := snap.Resolved[fp]; seen {
			decision.Kind = domain.KindRecurring
			delete(snap.Resolved, fp)
		}
		decision.ShouldNotify = true
		snap.Active[fp] = record
		decision.Record = record.Clone()
	})
	if err != nil {
		return domain.Decision{}, err
	}
	return decision, nil
}

// Resolve moves an active alert into the resolved partition.
// Params: context, alert fingerprint, and resolution time.
// Returns: resolved record (nil when fingerprint was not active) or persistence error.
func (l *Ledger) Resolve(ctx context.Context, fp domain.Fingerprint, now time.Time) (*domain.AlertRecord, error) {
	l.mu.Lock()
	_, active := l.snap.Active[fp]
	l.mu.Unlock()
	if !active {
		return nil, nil
	}

	var resolved *domain.AlertRecord
	err := l.mutate(ctx, now, func(snap *domain.LedgerSnapshot, _ time.Duration) {
		record, ok := snap.Active[fp]
		if !ok {
			resolved = nil
			return
		}
		resolvedAt := now
		record.ResolvedTime = &resolvedAt
		delete(snap.Active, fp)
		snap.Resolved[fp] = record
		out := record.Clone()
		resolved = &out
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// ResetNotified stamps last_notified on every active alert.
// Params: context and delivery time.
// Returns: persistence error.
func (l *Ledger) ResetNotified(ctx context.Context, now time.Time) error {
	return l.mutate(ctx, now, func(snap *domain.LedgerSnapshot, _ time.Duration) {
		for fp, record := range snap.Active {
			record.LastNotified = now
			snap.Active[fp] = record
		}
	})
}

// Lookup returns one record from either partition.
// Params: fingerprint.
// Returns: record copy, whether it is active, and whether it exists.
func (l *Ledger) Lookup(fp domain.Fingerprint) (domain.AlertRecord, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if record, ok := l.snap.Active[fp]; ok {
		return record.Clone(), true, true
	}
	if record, ok := l.snap.Resolved[fp]; ok {
		return record.Clone(), false, true
	}
	return domain.AlertRecord{}, false, false
}

// Active returns copies of active alerts ordered by first detection.
func (l *Ledger) Active() []domain.AlertRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedCopy(l.snap.Active)
}

// Resolved returns copies of resolved alerts ordered by first detection.
func (l *Ledger) Resolved() []domain.AlertRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedCopy(l.snap.Resolved)
}

// Snapshot returns a deep copy of both partitions.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Clone()
}

// mutate applies fn to a copy of the snapshot, persists it, and swaps it in.
// On a revision conflict the snapshot is reloaded from storage and fn is applied once more.
// Params: context, mutation time, and mutation callback receiving the active cooldown.
// Returns: error wrapping ErrPersist; in-memory state is untouched on failure.
func (l *Ledger) mutate(ctx context.Context, now time.Time, fn func(*domain.LedgerSnapshot, time.Duration)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.snap.Clone()
	fn(&next, l.opts.Cooldown)
	l.prune(&next, now)
	err := l.store.Save(ctx, next)
	if errors.Is(err, state.ErrConflict) {
		fresh, loadErr := l.store.Load(ctx)
		if loadErr != nil {
			return fmt.Errorf("%w: reload after conflict: %w", ErrPersist, loadErr)
		}
		next = fresh.Clone()
		fn(&next, l.opts.Cooldown)
		l.prune(&next, now)
		err = l.store.Save(ctx, next)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	l.snap = next
	return nil
}

func (l *Ledger) prune(snap *domain.LedgerSnapshot, now time.Time) {
	if l.opts.ResolvedRetention <= 0 {
		return
	}
	cutoff := now.Add(-l.opts.ResolvedRetention)
	for fp, record := range snap.Resolved {
		if record.ResolvedTime != nil && record.ResolvedTime.Before(cutoff) {
			delete(snap.Resolved, fp)
		}
	}
}

func sortedCopy(records map[domain.Fingerprint]domain.AlertRecord) []domain.AlertRecord {
	out := make([]domain.AlertRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.Clone())
	}
	domain.SortRecords(out)
	return out
}
