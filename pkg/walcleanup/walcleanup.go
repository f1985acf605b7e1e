// Package walcleanup implements WalCleanupPlanner, the heart of the
// engine: given a just-deleted backup and the surviving
// catalog, it computes the WAL set — and, where possible, whole key
// prefixes — that may be removed without breaking any surviving full
// or standalone archival backup. The planner is read-only: it never
// touches the object store itself, so re-running it after a partial
// apply failure is always safe (monotonicity).
package walcleanup

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/custodian/pkg/catalog"
	"github.com/cuemby/custodian/pkg/errs"
	"github.com/cuemby/custodian/pkg/keep"
	"github.com/cuemby/custodian/pkg/log"
	"github.com/cuemby/custodian/pkg/walname"
)

// WalDeletion is one individual WAL key the plan marks for deletion.
type WalDeletion struct {
	Name       string
	StorageKey string
}

// Plan is the output of Planner.Plan: a set of whole-prefix deletions
// and a set of individual WAL keys.
type Plan struct {
	// PrefixKeys are full storage-key prefixes ("{wals}/{tli+log}/")
	// that may be deleted in one request.
	PrefixKeys []string
	Wals       []WalDeletion
}

// Empty reports whether the plan has nothing to delete.
func (p *Plan) Empty() bool {
	return len(p.PrefixKeys) == 0 && len(p.Wals) == 0
}

// protectedRange is a standalone pin's inclusive WAL range, decoded
// once for the four-corner intersection test.
type protectedRange struct {
	beginWAL, endWAL string
	begin, end       walname.Segment
}

// Planner computes WalCleanupPlanner's deletion plan for one backup.
type Planner struct {
	Catalog *catalog.Catalog
	Keep    *keep.Registry
}

// Plan computes the deletion plan for deleted, given the caller's
// skipWalCleanupIfStandalone flag (true for a single-backup deletion,
// false for a policy-driven bulk run).
//
// deleted must still be resolvable from the catalog's cached backup
// list; callers must not have called Catalog.EvictBackup(deleted.ID)
// before invoking Plan.
func (p *Planner) Plan(ctx context.Context, deleted *catalog.Backup, skipWalCleanupIfStandalone bool) (*Plan, error) {
	all, err := p.Catalog.SortedDoneBackups(ctx)
	if err != nil {
		return nil, err
	}

	var older, surviving []*catalog.Backup
	for _, b := range all {
		if b.ID == deleted.ID {
			continue
		}
		surviving = append(surviving, b)
		if b.ID < deleted.ID {
			older = append(older, b)
		}
	}

	shouldRemove, err := p.shouldRemoveWals(ctx, older, skipWalCleanupIfStandalone)
	if err != nil {
		return nil, err
	}
	if !shouldRemove {
		return &Plan{}, nil
	}

	cutoff := chooseCutoff(all, deleted)

	protectedRanges, err := p.protectedRanges(ctx, surviving)
	if err != nil {
		return nil, err
	}

	protectedTimelines := protectedTimelines(surviving, cutoff.Timeline)

	cutoffSeg, err := walname.Decode(walname.Base(cutoff.BeginWAL))
	if err != nil {
		return nil, fmt.Errorf("walcleanup: decoding cutoff begin WAL %q: %w", cutoff.BeginWAL, err)
	}

	plan := &Plan{}

	deletablePrefixes, err := p.planPrefixShortcut(ctx, protectedTimelines, protectedRanges, cutoffSeg)
	if err != nil {
		return nil, err
	}
	plan.PrefixKeys = deletablePrefixes

	wals, err := p.planIndividualWals(ctx, deletablePrefixes, protectedTimelines, protectedRanges, cutoff.BeginWAL)
	if err != nil {
		return nil, err
	}
	plan.Wals = wals

	return plan, nil
}

// shouldRemoveWals decides whether cleanup proceeds at all: either there is no
// older surviving backup, or every older surviving backup is pinned
// standalone and the caller allows reclaiming around them.
func (p *Planner) shouldRemoveWals(ctx context.Context, older []*catalog.Backup, skipWalCleanupIfStandalone bool) (bool, error) {
	if len(older) == 0 {
		return true, nil
	}
	for _, b := range older {
		target, err := p.Keep.Target(ctx, b.ID, true)
		if err != nil {
			return false, err
		}
		if target != keep.TargetStandalone {
			return false, nil
		}
	}
	return !skipWalCleanupIfStandalone, nil
}

// chooseCutoff picks the cutoff backup: the next DONE backup after
// deleted by id, or deleted itself when it is the newest.
func chooseCutoff(all []*catalog.Backup, deleted *catalog.Backup) *catalog.Backup {
	for _, b := range all {
		if b.ID > deleted.ID {
			return b
		}
	}
	return deleted
}

// protectedRanges computes the WAL ranges a standalone pin protects:
// every surviving backup pinned
// standalone protects its [beginWAL, endWAL] range inclusive.
func (p *Planner) protectedRanges(ctx context.Context, surviving []*catalog.Backup) ([]protectedRange, error) {
	var ranges []protectedRange
	for _, b := range surviving {
		target, err := p.Keep.Target(ctx, b.ID, true)
		if err != nil {
			return nil, err
		}
		if target != keep.TargetStandalone {
			continue
		}
		begin, err := walname.Decode(walname.Base(b.BeginWAL))
		if err != nil {
			return nil, fmt.Errorf("walcleanup: decoding begin WAL of standalone pin %s: %w", b.ID, err)
		}
		end, err := walname.Decode(walname.Base(b.EndWAL))
		if err != nil {
			return nil, fmt.Errorf("walcleanup: decoding end WAL of standalone pin %s: %w", b.ID, err)
		}
		ranges = append(ranges, protectedRange{beginWAL: b.BeginWAL, endWAL: b.EndWAL, begin: begin, end: end})
	}
	return ranges, nil
}

// protectedTimelines returns every timeline appearing in a
// surviving DONE backup's beginWAL, other than the cutoff's timeline.
// This is intentionally conservative about multi-timeline history —
// intentionally conservative, carried unchanged.
func protectedTimelines(surviving []*catalog.Backup, cutoffTimeline uint32) map[uint32]bool {
	t := make(map[uint32]bool)
	for _, b := range surviving {
		if b.Timeline != cutoffTimeline {
			t[b.Timeline] = true
		}
	}
	return t
}

func inAnyRange(timeline, logNum uint32, ranges []protectedRange) bool {
	for _, r := range ranges {
		if walname.CornerIntersects(timeline, logNum, r.begin, r.end) {
			return true
		}
	}
	return false
}

// inAnyExactRange reports whether name falls within any standalone
// pin's exact [beginWAL, endWAL] string range. Unlike inAnyRange's
// {timeline, log} corner test, this is sensitive to the segment
// number, so a sibling WAL sharing a protected range's timeline and
// log but outside its begin/end bounds is not protected.
func inAnyExactRange(name string, ranges []protectedRange) bool {
	for _, r := range ranges {
		if walname.InRange(name, r.beginWAL, r.endWAL) {
			return true
		}
	}
	return false
}

// planPrefixShortcut finds whole WAL hash-dir prefixes that can be
// deleted in bulk, ahead of the slower per-object pass.
func (p *Planner) planPrefixShortcut(ctx context.Context, protectedTimelines map[uint32]bool, ranges []protectedRange, cutoffSeg walname.Segment) ([]string, error) {
	prefixes, err := p.Catalog.ListWalPrefixes(ctx)
	if err != nil {
		if errs.Is(err, errs.NotSupported) {
			return nil, nil
		}
		return nil, err
	}

	var deletable []string
	for _, prefix := range prefixes {
		hashDir := strings.TrimSuffix(prefix, "/")
		if idx := strings.LastIndex(hashDir, "/"); idx >= 0 {
			hashDir = hashDir[idx+1:]
		}
		tli, logNum, err := walname.DecodeHashDir(hashDir)
		if err != nil {
			log.Logger.Warn().Str("prefix", prefix).Msg("ignoring malformed WAL object prefix")
			continue
		}
		if protectedTimelines[tli] {
			continue
		}
		if inAnyRange(tli, logNum, ranges) {
			continue
		}
		if tli != cutoffSeg.Timeline || logNum >= cutoffSeg.Log {
			continue
		}
		deletable = append(deletable, prefix)
	}
	return deletable, nil
}

// planIndividualWals finds the remaining individual WAL objects that
// the prefix shortcut didn't already cover.
func (p *Planner) planIndividualWals(ctx context.Context, deletablePrefixes []string, protectedTimelines map[uint32]bool, ranges []protectedRange, cutoffBeginWAL string) ([]WalDeletion, error) {
	entries, err := p.Catalog.ListWalKeys(ctx)
	if err != nil {
		return nil, err
	}

	var out []WalDeletion
	for name, entry := range entries {
		if coveredByPrefix(entry.StorageKey, deletablePrefixes) {
			continue
		}
		if walname.IsHistoryFile(name) {
			continue
		}
		rangeCheckName := walname.Base(name)
		seg, err := walname.Decode(rangeCheckName)
		if err != nil {
			// Not a recognized segment name; leave it alone.
			continue
		}
		if protectedTimelines[seg.Timeline] {
			continue
		}
		if inAnyExactRange(rangeCheckName, ranges) {
			continue
		}
		if name < cutoffBeginWAL {
			out = append(out, WalDeletion{Name: name, StorageKey: entry.StorageKey})
		}
	}
	return out, nil
}

func coveredByPrefix(storageKey string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(storageKey, prefix) {
			return true
		}
	}
	return false
}
