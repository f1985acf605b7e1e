// Package retention implements the retention-policy evaluator: it
// classifies a server's DONE backups as VALID, OBSOLETE, or
// POTENTIALLY_OBSOLETE under a redundancy-count or recovery-window
// policy, with a minimum-redundancy floor and pin immutability.
package retention

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/custodian/pkg/catalog"
	"github.com/cuemby/custodian/pkg/errs"
	"github.com/cuemby/custodian/pkg/metrics"
)

// Verdict is a retention evaluator's classification of one backup.
type Verdict string

const (
	Valid               Verdict = "VALID"
	Obsolete            Verdict = "OBSOLETE"
	PotentiallyObsolete Verdict = "POTENTIALLY_OBSOLETE"
)

// PinLookup reports whether a backup id currently carries an archival
// pin. The evaluator never marks a pinned backup OBSOLETE.
type PinLookup func(id string) bool

// Policy computes an initial verdict set from a server's DONE backups,
// before the minimum-redundancy floor is applied.
type Policy interface {
	evaluate(done []*catalog.Backup, isPinned PinLookup) map[string]Verdict
}

// Evaluator computes, from the current catalog contents and a policy,
// which backups are OBSOLETE, VALID, or POTENTIALLY_OBSOLETE.
type Evaluator struct {
	Policy            Policy
	MinimumRedundancy int
}

// Evaluate classifies every DONE backup in backups (FAILED and STARTED
// backups are ignored) and returns a stable id -> Verdict
// map. Callers typically delete only OBSOLETE backups, oldest first.
func (e *Evaluator) Evaluate(backups []*catalog.Backup, isPinned PinLookup) map[string]Verdict {
	done := make([]*catalog.Backup, 0, len(backups))
	for _, b := range backups {
		if b.Status == catalog.StatusDone {
			done = append(done, b)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].ID < done[j].ID })

	verdicts := e.Policy.evaluate(done, isPinned)
	applyMinimumRedundancyFloor(done, verdicts, isPinned, e.MinimumRedundancy)

	for _, b := range done {
		metrics.RetentionEvaluationsTotal.WithLabelValues(b.Name, string(verdicts[b.ID])).Inc()
	}
	return verdicts
}

// applyMinimumRedundancyFloor promotes the oldest would-be-obsolete
// backups back to VALID until the count of VALID non-pinned DONE
// backups meets the floor.
func applyMinimumRedundancyFloor(done []*catalog.Backup, verdicts map[string]Verdict, isPinned PinLookup, minimumRedundancy int) {
	if minimumRedundancy <= 0 {
		return
	}
	validCount := func() int {
		n := 0
		for _, b := range done {
			if !isPinned(b.ID) && verdicts[b.ID] == Valid {
				n++
			}
		}
		return n
	}
	for _, b := range done {
		if validCount() >= minimumRedundancy {
			return
		}
		if isPinned(b.ID) {
			continue
		}
		if verdicts[b.ID] != Valid {
			verdicts[b.ID] = Valid
		}
	}
}

// RedundancyPolicy keeps the N newest non-pinned DONE backups VALID;
// older non-pinned DONE backups are OBSOLETE. Pinned backups are always
// VALID regardless of age.
type RedundancyPolicy struct {
	N int
}

func (p RedundancyPolicy) evaluate(done []*catalog.Backup, isPinned PinLookup) map[string]Verdict {
	verdicts := make(map[string]Verdict, len(done))

	// done is ascending by id; walk from newest, counting only
	// non-pinned backups toward the redundancy budget.
	remaining := p.N
	for i := len(done) - 1; i >= 0; i-- {
		b := done[i]
		if isPinned(b.ID) {
			verdicts[b.ID] = Valid
			continue
		}
		if remaining > 0 {
			verdicts[b.ID] = Valid
			remaining--
		} else {
			verdicts[b.ID] = Obsolete
		}
	}
	return verdicts
}

// RecoveryWindowPolicy keeps VALID every DONE backup from the "last
// serving backup" forward: the most recent DONE backup whose EndTime is
// at or before (Now - Duration). The DONE backup immediately older than
// the last serving backup is POTENTIALLY_OBSOLETE since it may still be
// needed to recover to a point inside the window; everything older is
// OBSOLETE. Pinned backups are always VALID.
type RecoveryWindowPolicy struct {
	Duration time.Duration
	Now      time.Time
}

func (p RecoveryWindowPolicy) evaluate(done []*catalog.Backup, isPinned PinLookup) map[string]Verdict {
	verdicts := make(map[string]Verdict, len(done))
	cutoff := p.Now.Add(-p.Duration)

	lastServingIdx := -1
	for i := len(done) - 1; i >= 0; i-- {
		if !done[i].EndTime.After(cutoff) {
			lastServingIdx = i
			break
		}
	}

	for i, b := range done {
		switch {
		case isPinned(b.ID):
			verdicts[b.ID] = Valid
		case lastServingIdx == -1:
			// Every backup is newer than the window's edge.
			verdicts[b.ID] = Valid
		case i >= lastServingIdx:
			verdicts[b.ID] = Valid
		case i == lastServingIdx-1:
			verdicts[b.ID] = PotentiallyObsolete
		default:
			verdicts[b.ID] = Obsolete
		}
	}
	return verdicts
}

var (
	redundancyRe = regexp.MustCompile(`(?i)^\s*REDUNDANCY\s+(\d+)\s*$`)
	windowRe     = regexp.MustCompile(`(?i)^\s*RECOVERY\s+WINDOW\s+OF\s+(\d+)\s+(DAY|DAYS|WEEK|WEEKS|MONTH|MONTHS)\s*$`)
)

// Parse parses a retention-policy string of the form
// "REDUNDANCY value" or "RECOVERY WINDOW OF value {DAYS|WEEKS|MONTHS}",
// returning an errs.InvalidRetentionPolicy error on any other syntax.
func Parse(policy string, now time.Time) (Policy, error) {
	if m := redundancyRe.FindStringSubmatch(policy); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errs.New(errs.InvalidRetentionPolicy, fmt.Errorf("retention: bad redundancy value in %q: %w", policy, err))
		}
		return RedundancyPolicy{N: n}, nil
	}
	if m := windowRe.FindStringSubmatch(policy); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errs.New(errs.InvalidRetentionPolicy, fmt.Errorf("retention: bad window value in %q: %w", policy, err))
		}
		var unit time.Duration
		switch {
		case strings.HasPrefix(strings.ToUpper(m[2]), "DAY"):
			unit = 24 * time.Hour
		case strings.HasPrefix(strings.ToUpper(m[2]), "WEEK"):
			unit = 7 * 24 * time.Hour
		case strings.HasPrefix(strings.ToUpper(m[2]), "MONTH"):
			unit = 30 * 24 * time.Hour
		}
		return RecoveryWindowPolicy{Duration: time.Duration(n) * unit, Now: now}, nil
	}
	return nil, errs.New(errs.InvalidRetentionPolicy, fmt.Errorf("retention: could not parse policy %q", policy))
}
