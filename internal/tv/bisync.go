package tv

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// Bisync reconciles two trees symmetrically. A path present on one side only
// is copied to the other. A path present on both sides with different content
// is a conflict, resolved by opts.ConflictResolution and always recorded in
// the report. DeleteExtraneous has no meaning here and is ignored: without
// prior state a missing file cannot be told apart from a new one.
func (s *Synchronizer) Bisync(ctx context.Context, pathA, pathB string, opts SyncOptions) (*SyncReport, error) {
	opts = opts.withDefaults()
	if err := s.checkOptions(opts); err != nil {
		return nil, err
	}

	a, err := s.resolveSourceRoot(pathA)
	if err != nil {
		return nil, err
	}
	b, bAbs, err := s.openTargetRoot(pathB, opts.DryRun)
	if err != nil {
		return nil, err
	}

	report := newReport(a.String(), bAbs, opts.DryRun, s.clock.Now())
	s.logger.Info("bidirectional sync started", "a", a.String(), "b", bAbs, "policy", opts.ConflictResolution.String(), "dry_run", opts.DryRun)

	aOpts := opts.walkOptions()
	aOpts.SkipDirs = []string{bAbs}
	walkA, err := s.fsmgr.Walk(ctx, a, aOpts)
	if err != nil {
		return nil, walkError(ctx, "bidirectional sync", fmt.Errorf("reading tree %s: %w", a.String(), err))
	}
	report.Errors = append(report.Errors, walkA.Errors...)

	filesA := indexEntries(walkA.Entries)
	filesB := make(map[string]*Entry)
	if b != nil {
		bOpts := opts.walkOptions()
		bOpts.SkipDirs = []string{a.String()}
		walkB, err := s.fsmgr.Walk(ctx, b, bOpts)
		if err != nil {
			return nil, walkError(ctx, "bidirectional sync", fmt.Errorf("reading tree %s: %w", bAbs, err))
		}
		report.Errors = append(report.Errors, walkB.Errors...)
		filesB = indexEntries(walkB.Entries)
	}

	union := make([]string, 0, len(filesA)+len(filesB))
	for rel := range filesA {
		union = append(union, rel)
	}
	for rel := range filesB {
		if _, ok := filesA[rel]; !ok {
			union = append(union, rel)
		}
	}
	sort.Strings(union)

	results := make([]fileResult, len(union))
	started := forEach(ctx, len(union), opts.Workers, func(i int) {
		rel := union[i]
		results[i] = s.reconcile(ctx, rel, filesA[rel], filesB[rel], a.String(), bAbs, opts)
	})
	for i := 0; i < started; i++ {
		tally(report, union[i], results[i], s.clock.Now())
	}

	report.finish(s.clock.Now())
	if err := ctx.Err(); err != nil {
		s.logger.Warn("bidirectional sync cancelled", "processed", report.FilesProcessed, "total", len(union))
		return report, NewError(Cancelled, "bidirectional sync cancelled", err)
	}

	s.logger.Info("bidirectional sync complete",
		"processed", report.FilesProcessed,
		"copied", report.FilesCopied,
		"conflicts", len(report.Conflicts),
		"unresolved", report.Unresolved(),
		"errors", len(report.Errors),
	)
	return report, nil
}

// reconcile handles one relative path of the union.
func (s *Synchronizer) reconcile(ctx context.Context, rel string, ea, eb *Entry, rootA, rootB string, opts SyncOptions) fileResult {
	local := filepath.FromSlash(rel)
	switch {
	case eb == nil:
		return s.transfer(ctx, ea, filepath.Join(rootB, local), opts)
	case ea == nil:
		return s.transfer(ctx, eb, filepath.Join(rootA, local), opts)
	}

	differs, err := s.bothDiffer(ctx, ea, eb, opts.HashAlgorithm)
	if err != nil {
		return fileResult{op: "compare", err: err}
	}
	if !differs {
		return fileResult{}
	}

	outcome, why := resolveConflict(opts.ConflictResolution, ea.Path.Info(), eb.Path.Info())
	conflict := &SyncConflict{
		Path:           rel,
		Reason:         "content differs",
		SourceModified: ea.Path.Info().ModTime(),
		TargetModified: eb.Path.Info().ModTime(),
		Outcome:        outcome,
		Resolution:     describeResolution(outcome, why, opts.DryRun),
	}

	var r fileResult
	switch outcome {
	case OutcomeCopyToTarget:
		r = s.transfer(ctx, ea, filepath.Join(rootB, local), opts)
	case OutcomeCopyToSource:
		r = s.transfer(ctx, eb, filepath.Join(rootA, local), opts)
	default:
		s.logger.Warn("conflict left unresolved", "path", rel, "reason", why)
	}
	if r.err != nil {
		conflict.Resolution += " (failed)"
	}
	r.conflict = conflict
	return r
}

// bothDiffer reports whether two files hold different content. Sizes are
// checked first since a size difference settles it without hashing.
func (s *Synchronizer) bothDiffer(ctx context.Context, ea, eb *Entry, algorithm string) (bool, error) {
	if ea.Path.Info().Size() != eb.Path.Info().Size() {
		return true, nil
	}
	return s.contentDiffers(ctx, ea.Path, eb.Path, algorithm)
}

// resolveConflict applies the policy to a conflicting pair. The returned
// string names the deciding criterion.
func resolveConflict(policy ConflictPolicy, a, b fs.FileInfo) (Outcome, string) {
	switch policy {
	case PolicyNewer:
		switch {
		case a.ModTime().After(b.ModTime()):
			return OutcomeCopyToTarget, "source is newer"
		case b.ModTime().After(a.ModTime()):
			return OutcomeCopyToSource, "target is newer"
		}
		return OutcomeUnresolved, "modification times are equal"
	case PolicyLarger:
		switch {
		case a.Size() > b.Size():
			return OutcomeCopyToTarget, "source is larger"
		case b.Size() > a.Size():
			return OutcomeCopyToSource, "target is larger"
		}
		return OutcomeUnresolved, "sizes are equal"
	case PolicySource:
		return OutcomeCopyToTarget, "source wins"
	case PolicyTarget:
		return OutcomeCopyToSource, "target wins"
	}
	return OutcomeUnresolved, "unknown policy"
}

func describeResolution(outcome Outcome, why string, dryRun bool) string {
	verb := "copied"
	if dryRun {
		verb = "would copy"
	}
	switch outcome {
	case OutcomeCopyToTarget:
		return fmt.Sprintf("%s source to target (%s)", verb, why)
	case OutcomeCopyToSource:
		return fmt.Sprintf("%s target to source (%s)", verb, why)
	case OutcomeIdentical:
		return "no action: identical content"
	}
	return fmt.Sprintf("manual resolution required: %s", why)
}

func indexEntries(entries []*Entry) map[string]*Entry {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		m[e.RelPath] = e
	}
	return m
}
