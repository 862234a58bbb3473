package domain

import (
	"testing"
	"time"
)

func TestObservationAlertTypeFallsBackToFirstWord(t *testing.T) {
	t.Parallel()

	cases := map[string]Observation{
		"cpu":     {Type: "cpu", Message: "whatever"},
		"server":  {Message: "Server is not reachable: timeout"},
		"error":   {Message: "Error: checking server"},
		"unknown": {},
	}
	for want, obs := range cases {
		if got := obs.AlertType(); got != want {
			t.Fatalf("AlertType(%+v)=%q, want %q", obs, got, want)
		}
	}
}

func TestLedgerSnapshotValidateRejectsOverlap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := NewLedgerSnapshot()
	snap.Active["a"] = AlertRecord{Fingerprint: "a"}
	snap.Resolved["a"] = AlertRecord{Fingerprint: "a", ResolvedTime: &now}
	if err := snap.Validate(); err == nil {
		t.Fatalf("expected overlap error")
	}

	delete(snap.Resolved, "a")
	snap.Resolved["b"] = AlertRecord{Fingerprint: "c", ResolvedTime: &now}
	if err := snap.Validate(); err == nil {
		t.Fatalf("expected key mismatch error")
	}
}

func TestLedgerSnapshotCloneIsDeep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := NewLedgerSnapshot()
	snap.Resolved["a"] = AlertRecord{Fingerprint: "a", ResolvedTime: &now}

	clone := snap.Clone()
	*clone.Resolved["a"].ResolvedTime = now.Add(time.Hour)
	if !snap.Resolved["a"].ResolvedTime.Equal(now) {
		t.Fatalf("clone shares resolved_time pointer")
	}
}

func TestNotificationCountsAndGrouping(t *testing.T) {
	t.Parallel()

	n := Notification{Events: []Event{
		{Kind: KindNew, Record: AlertRecord{Server: "web1"}},
		{Kind: KindRecurring, Record: AlertRecord{Server: "db1"}},
		{Kind: KindNew, Record: AlertRecord{Server: "web1"}},
	}}
	counts := n.Counts()
	if counts.New != 2 || counts.Recurring != 1 || counts.Servers != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	groups := n.GroupByServer()
	if len(groups) != 2 || groups[0].Server != "web1" || len(groups[0].Events) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestSubscriberDisplayName(t *testing.T) {
	t.Parallel()

	if got := (Subscriber{ChatID: 7, Username: "ops"}).DisplayName(); got != "@ops" {
		t.Fatalf("got %q", got)
	}
	if got := (Subscriber{ChatID: 7, FirstName: "Ana"}).DisplayName(); got != "Ana" {
		t.Fatalf("got %q", got)
	}
	if got := (Subscriber{ChatID: 7}).DisplayName(); got != "7" {
		t.Fatalf("got %q", got)
	}
}
