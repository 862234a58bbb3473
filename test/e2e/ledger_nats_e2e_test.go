package e2e

import (
	"context"
	"fmt"
	"testing"

	"heimdall/internal/ledger"
	"heimdall/test/testutil"
)

func TestNATSLedgerSurvivesRestart(t *testing.T) {
	url, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	ws := newWorkspace(t, fmt.Sprintf(`
[service]
host_pause_ms = 1

[alerts]
store = "nats"
cooldown_hours = 1

[alerts.nats]
url = [%q]
bucket = "heimdall_e2e"
allow_create_bucket = true

[log.alerts]
enabled = false
`, url), reloadInventory)

	sample := &cpuSampler{cpu: 95}
	first := newRuntime(t, ws, sample)
	if _, err := first.Sweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	before := first.Ledger.Active()
	if err := first.Close(); err != nil {
		t.Fatalf("close first runtime: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected one active alert, got %d", len(before))
	}

	second := newRuntime(t, ws, sample)
	defer second.Close()

	fp := ledger.Fingerprint("web1", "web1.internal", ledger.TypeCPU)
	record, active, found := second.Ledger.Lookup(fp)
	if !found || !active {
		t.Fatalf("alert must be restored from the bucket (found=%v active=%v)", found, active)
	}
	if !record.FirstDetected.Equal(before[0].FirstDetected) {
		t.Fatalf("first detection changed across restart: %v vs %v", record.FirstDetected, before[0].FirstDetected)
	}

	sample.set(20)
	summary, err := second.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(summary.Hosts) != 1 || len(summary.Hosts[0].Resolved) != 1 {
		t.Fatalf("expected the cpu alert to resolve, got %+v", summary.Hosts)
	}
}
