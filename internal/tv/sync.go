package tv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"
)

// Synchronizer reconciles directory trees under a declared policy.
// Every pass returns a complete report even when individual files fail.
type Synchronizer struct {
	fsmgr  FilesystemManager
	logger Logger
	clock  Clock
}

// NewSynchronizer creates a Synchronizer with the provided dependencies.
func NewSynchronizer(fsmgr FilesystemManager, logger Logger, clock Clock) *Synchronizer {
	return &Synchronizer{
		fsmgr:  fsmgr,
		logger: logger,
		clock:  clock,
	}
}

// fileResult is what a worker reports back for one relative path.
type fileResult struct {
	copied   bool
	bytes    int64
	conflict *SyncConflict
	op       string
	err      error
}

// Sync copies sourcePath onto targetPath. With opts.Bidirectional set it
// delegates to Bisync.
//
// A file is copied when the fast path says so (target missing, size differs,
// or source strictly newer). When the fast path is inconclusive, content
// digests decide, except under PolicySource where the fast path is final.
// Target files never visited are deleted when opts.DeleteExtraneous is set.
func (s *Synchronizer) Sync(ctx context.Context, sourcePath, targetPath string, opts SyncOptions) (*SyncReport, error) {
	opts = opts.withDefaults()
	if opts.Bidirectional {
		return s.Bisync(ctx, sourcePath, targetPath, opts)
	}
	if err := s.checkOptions(opts); err != nil {
		return nil, err
	}

	src, err := s.resolveSourceRoot(sourcePath)
	if err != nil {
		return nil, err
	}
	dst, dstAbs, err := s.openTargetRoot(targetPath, opts.DryRun)
	if err != nil {
		return nil, err
	}

	report := newReport(src.String(), dstAbs, opts.DryRun, s.clock.Now())
	s.logger.Info("sync started", "source", src.String(), "target", dstAbs, "dry_run", opts.DryRun)

	srcWalk, err := s.fsmgr.Walk(ctx, src, opts.sourceWalkOptions(dstAbs))
	if err != nil {
		return nil, walkError(ctx, "sync", fmt.Errorf("reading source tree: %w", err))
	}
	report.Errors = append(report.Errors, srcWalk.Errors...)

	targetFiles := make(map[string]*Entry)
	if dst != nil {
		dstOpts := opts.walkOptions()
		dstOpts.SkipDirs = []string{src.String()}
		dstWalk, err := s.fsmgr.Walk(ctx, dst, dstOpts)
		if err != nil {
			return nil, walkError(ctx, "sync", fmt.Errorf("reading target tree: %w", err))
		}
		report.Errors = append(report.Errors, dstWalk.Errors...)
		for _, e := range dstWalk.Entries {
			targetFiles[e.RelPath] = e
		}
	}

	entries := srcWalk.Entries
	results := make([]fileResult, len(entries))
	started := forEach(ctx, len(entries), opts.Workers, func(i int) {
		results[i] = s.syncFile(ctx, entries[i], targetFiles[entries[i].RelPath], dstAbs, opts)
	})
	for i := 0; i < started; i++ {
		tally(report, entries[i].RelPath, results[i], s.clock.Now())
	}

	if err := ctx.Err(); err != nil {
		report.finish(s.clock.Now())
		s.logger.Warn("sync cancelled", "processed", report.FilesProcessed, "total", len(entries))
		return report, NewError(Cancelled, "sync cancelled", err)
	}

	if opts.DeleteExtraneous {
		visited := make(map[string]bool, len(entries))
		for _, e := range entries {
			visited[e.RelPath] = true
		}
		if err := s.deleteExtraneous(ctx, report, targetFiles, visited, opts.DryRun); err != nil {
			report.finish(s.clock.Now())
			return report, err
		}
	}

	report.finish(s.clock.Now())
	s.logger.Info("sync complete",
		"processed", report.FilesProcessed,
		"copied", report.FilesCopied,
		"deleted", report.FilesDeleted,
		"bytes", report.BytesTransferred,
		"errors", len(report.Errors),
	)
	return report, nil
}

// syncFile decides and performs the one-way copy for a single source file.
func (s *Synchronizer) syncFile(ctx context.Context, src, existing *Entry, targetRoot string, opts SyncOptions) fileResult {
	needed, err := s.needsCopy(ctx, src, existing, opts)
	if err != nil {
		return fileResult{op: "compare", err: err}
	}
	if !needed {
		return fileResult{}
	}
	return s.transfer(ctx, src, filepath.Join(targetRoot, filepath.FromSlash(src.RelPath)), opts)
}

// needsCopy applies the two-tier change test.
func (s *Synchronizer) needsCopy(ctx context.Context, src, dst *Entry, opts SyncOptions) (bool, error) {
	if dst == nil {
		return true, nil
	}
	si, di := src.Path.Info(), dst.Path.Info()
	if si.Size() != di.Size() || si.ModTime().After(di.ModTime()) {
		return true, nil
	}
	if opts.ConflictResolution == PolicySource {
		return false, nil
	}
	return s.contentDiffers(ctx, src.Path, dst.Path, opts.HashAlgorithm)
}

// contentDiffers compares the digests of two files.
func (s *Synchronizer) contentDiffers(ctx context.Context, a, b *Path, algorithm string) (bool, error) {
	ha, err := s.fsmgr.Hash(ctx, a, algorithm)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", a.String(), err)
	}
	hb, err := s.fsmgr.Hash(ctx, b, algorithm)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", b.String(), err)
	}
	return ha != hb, nil
}

// transfer copies src to dstPath, or only accounts for it in a dry run.
func (s *Synchronizer) transfer(ctx context.Context, src *Entry, dstPath string, opts SyncOptions) fileResult {
	if opts.DryRun {
		s.logger.Debug("would copy", "path", src.RelPath, "to", dstPath)
		return fileResult{copied: true, bytes: src.Path.Info().Size()}
	}

	n, err := s.fsmgr.CopyFile(ctx, src.Path, dstPath)
	if err != nil {
		return fileResult{op: "copy", err: err}
	}
	if opts.PreserveTimestamps {
		if err := s.preserveTimes(src.Path, dstPath); err != nil {
			return fileResult{op: "chtimes", err: err}
		}
	}
	s.logger.Debug("file copied", "path", src.RelPath, "to", dstPath, "bytes", n)
	return fileResult{copied: true, bytes: n}
}

// preserveTimes carries the source's access and modification times onto dstPath.
func (s *Synchronizer) preserveTimes(src *Path, dstPath string) error {
	info := src.Info()
	atime := info.ModTime()
	if st, err := s.fsmgr.ExtractStatData(info); err == nil {
		atime = st.Atime
	}
	if err := s.fsmgr.Chtimes(dstPath, atime, info.ModTime()); err != nil {
		return fmt.Errorf("preserving timestamps: %w", err)
	}
	return nil
}

// deleteExtraneous removes target files that were present before the pass
// and never visited from the source side.
func (s *Synchronizer) deleteExtraneous(ctx context.Context, report *SyncReport, targetFiles map[string]*Entry, visited map[string]bool, dryRun bool) error {
	var extra []string
	for rel := range targetFiles {
		if !visited[rel] {
			extra = append(extra, rel)
		}
	}
	sort.Strings(extra)

	for _, rel := range extra {
		if err := ctx.Err(); err != nil {
			return NewError(Cancelled, "sync cancelled during deletion", err)
		}
		if !dryRun {
			if err := s.fsmgr.Remove(targetFiles[rel].Path.String()); err != nil {
				report.addError(rel, "delete", err, s.clock.Now())
				continue
			}
		}
		report.FilesDeleted++
		s.logger.Debug("extraneous file deleted", "path", rel, "dry_run", dryRun)
	}
	return nil
}

// tally folds one worker result into the report.
func tally(report *SyncReport, rel string, r fileResult, now time.Time) {
	report.FilesProcessed++
	if r.conflict != nil {
		report.Conflicts = append(report.Conflicts, *r.conflict)
	}
	switch {
	case r.err != nil:
		report.fail(rel, r.op, r.err, now)
	case r.copied:
		report.FilesCopied++
		report.BytesTransferred += r.bytes
	case r.conflict == nil:
		report.FilesSkipped++
	}
}

// walkError classifies a failed tree walk as Cancelled when ctx is done.
func walkError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewError(Cancelled, op+" cancelled", ctxErr)
	}
	return err
}

func (s *Synchronizer) checkOptions(opts SyncOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := s.fsmgr.ValidatePatterns(opts.ExcludePatterns); err != nil {
		return NewError(Precondition, "invalid exclude pattern", err)
	}
	return nil
}

// resolveSourceRoot resolves a root that must already exist as a directory.
func (s *Synchronizer) resolveSourceRoot(raw string) (*Path, error) {
	p, err := s.fsmgr.Resolve(raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewError(NotFound, fmt.Sprintf("source not found: %s", raw), err)
		}
		return nil, fmt.Errorf("reading source root: %w", err)
	}
	if !p.IsDir() {
		return nil, preconditionf("source is not a directory: %s", p.String())
	}
	return p, nil
}

// openTargetRoot resolves a root that may not exist yet. A missing root is
// created, except in a dry run where the returned Path is nil.
func (s *Synchronizer) openTargetRoot(raw string, dryRun bool) (*Path, string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return nil, "", fmt.Errorf("resolving target path: %w", err)
	}

	p, err := s.fsmgr.Resolve(abs)
	switch {
	case err == nil:
		if !p.IsDir() {
			return nil, "", preconditionf("target is not a directory: %s", abs)
		}
		return p, abs, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, "", fmt.Errorf("reading target root: %w", err)
	case dryRun:
		return nil, abs, nil
	}

	if err := s.fsmgr.MkdirAll(abs); err != nil {
		return nil, "", fmt.Errorf("creating target root: %w", err)
	}
	p, err = s.fsmgr.Resolve(abs)
	if err != nil {
		return nil, "", fmt.Errorf("resolving created target root: %w", err)
	}
	return p, abs, nil
}
