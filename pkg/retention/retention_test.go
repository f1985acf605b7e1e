package retention

import (
	"testing"
	"time"

	"github.com/cuemby/custodian/pkg/catalog"
)

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func TestRedundancyPolicyE3(t *testing.T) {
	backups := []*catalog.Backup{
		{ID: "B0", Status: catalog.StatusDone},
		{ID: "B1", Status: catalog.StatusDone},
		{ID: "B2", Status: catalog.StatusDone},
		{ID: "B3", Status: catalog.StatusDone},
	}
	pinned := map[string]bool{"B0": true}
	isPinned := func(id string) bool { return pinned[id] }

	eval := &Evaluator{Policy: RedundancyPolicy{N: 2}}
	verdicts := eval.Evaluate(backups, isPinned)

	want := map[string]Verdict{"B0": Valid, "B1": Obsolete, "B2": Valid, "B3": Valid}
	for id, v := range want {
		if verdicts[id] != v {
			t.Errorf("verdict[%s] = %s, want %s", id, verdicts[id], v)
		}
	}
}

func TestRecoveryWindowPolicyE4(t *testing.T) {
	now := mustParseTime(t, "2021-07-27T00:00:00Z")
	backups := []*catalog.Backup{
		{ID: "B0", Status: catalog.StatusDone, EndTime: mustParseTime(t, "2021-07-22T17:05:20Z")},
		{ID: "B1", Status: catalog.StatusDone, EndTime: mustParseTime(t, "2021-07-23T17:05:20Z")},
		{ID: "B2", Status: catalog.StatusDone, EndTime: mustParseTime(t, "2021-07-24T17:05:20Z")},
		{ID: "B3", Status: catalog.StatusDone, EndTime: mustParseTime(t, "2021-07-25T17:05:20Z")},
	}
	isPinned := func(string) bool { return false }

	eval := &Evaluator{Policy: RecoveryWindowPolicy{Duration: 2 * 24 * time.Hour, Now: now}}
	verdicts := eval.Evaluate(backups, isPinned)

	want := map[string]Verdict{"B0": Obsolete, "B1": PotentiallyObsolete, "B2": Valid, "B3": Valid}
	for id, v := range want {
		if verdicts[id] != v {
			t.Errorf("verdict[%s] = %s, want %s", id, verdicts[id], v)
		}
	}
}

func TestMinimumRedundancyFloorPromotesOldestObsolete(t *testing.T) {
	backups := []*catalog.Backup{
		{ID: "B0", Status: catalog.StatusDone},
		{ID: "B1", Status: catalog.StatusDone},
		{ID: "B2", Status: catalog.StatusDone},
	}
	isPinned := func(string) bool { return false }

	eval := &Evaluator{Policy: RedundancyPolicy{N: 1}, MinimumRedundancy: 2}
	verdicts := eval.Evaluate(backups, isPinned)

	validCount := 0
	for _, v := range verdicts {
		if v == Valid {
			validCount++
		}
	}
	if validCount < 2 {
		t.Errorf("expected at least 2 VALID backups to satisfy the floor, got %d: %+v", validCount, verdicts)
	}
	if verdicts["B0"] != Valid {
		t.Errorf("B0, the oldest obsolete backup, should have been promoted back to VALID to satisfy the floor, got %s", verdicts["B0"])
	}
}

func TestPinnedBackupNeverObsolete(t *testing.T) {
	backups := []*catalog.Backup{
		{ID: "B0", Status: catalog.StatusDone},
		{ID: "B1", Status: catalog.StatusDone},
	}
	isPinned := func(id string) bool { return id == "B0" }

	eval := &Evaluator{Policy: RedundancyPolicy{N: 0}}
	verdicts := eval.Evaluate(backups, isPinned)

	if verdicts["B0"] != Valid {
		t.Errorf("pinned backup must never be OBSOLETE, got %s", verdicts["B0"])
	}
}

func TestParsePolicy(t *testing.T) {
	now := time.Now()
	if p, err := Parse("REDUNDANCY 3", now); err != nil {
		t.Errorf("Parse REDUNDANCY: %v", err)
	} else if rp, ok := p.(RedundancyPolicy); !ok || rp.N != 3 {
		t.Errorf("Parse REDUNDANCY 3 = %#v", p)
	}

	if p, err := Parse("RECOVERY WINDOW OF 2 DAYS", now); err != nil {
		t.Errorf("Parse RECOVERY WINDOW: %v", err)
	} else if wp, ok := p.(RecoveryWindowPolicy); !ok || wp.Duration != 2*24*time.Hour {
		t.Errorf("Parse RECOVERY WINDOW OF 2 DAYS = %#v", p)
	}

	if _, err := Parse("nonsense", now); err == nil {
		t.Error("expected an error for an unparseable policy string")
	}
}
