// Package generalize promotes ready patterns into the user-scope baseline
// documents. Promotion is all-or-nothing: the consolidated patch set is
// planned entirely in memory, every touched baseline is backed up and
// verified, and only then are the new contents written. Any failure leaves
// every baseline unchanged and the pattern still ready.
package generalize

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jdeola/skillbase/pkg/document"
	"github.com/jdeola/skillbase/pkg/logger"
	"github.com/jdeola/skillbase/pkg/overlay"
	"github.com/jdeola/skillbase/pkg/patch"
	"github.com/jdeola/skillbase/pkg/pattern"
	"github.com/jdeola/skillbase/pkg/refinement"
)

// DefaultLockTimeout bounds how long a promotion waits for a baseline lock.
const DefaultLockTimeout = 10 * time.Second

// Applier performs pattern promotion, dismissal and rollback.
type Applier struct {
	store       refinement.Store
	loader      *overlay.Loader
	backupDir   string
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures an Applier.
type Option func(*Applier)

// WithBackupDir overrides the backup directory (default <userDir>/backups).
func WithBackupDir(dir string) Option {
	return func(a *Applier) { a.backupDir = dir }
}

// WithLockTimeout overrides the baseline lock timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(a *Applier) { a.lockTimeout = d }
}

// NewApplier creates an Applier over the given store and layer loader.
func NewApplier(store refinement.Store, loader *overlay.Loader, opts ...Option) *Applier {
	a := &Applier{
		store:       store,
		loader:      loader,
		backupDir:   filepath.Join(loader.UserDir(), "backups"),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DocumentChange describes one baseline document touched by a promotion.
type DocumentChange struct {
	Skill        string
	DocumentPath string
	BackupPath   string
	// Before and After hold the full document contents, for previews.
	Before string
	After  string
}

// PromotionResult reports what a promotion (or a plan) did or would do.
type PromotionResult struct {
	PatternID   string
	PromotionID string
	Changes     []DocumentChange
	Results     []patch.Result
}

// Plan validates the pattern and computes the new baseline contents without
// writing anything. Used directly for dry runs and as the first phase of
// Promote.
func (a *Applier) Plan(ctx context.Context, patternID string) (*PromotionResult, error) {
	p, err := a.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if p.Status != refinement.PatternReady {
		return nil, errors.Errorf("pattern %s is %s, not %s", p.ID, p.Status, refinement.PatternReady)
	}

	// State may have changed since the pattern was marked ready.
	ops, err := a.memberOps(ctx, &p)
	if err != nil {
		return nil, err
	}
	if !pattern.Consistent(ops) {
		return nil, &ConsistencyViolationError{PatternID: p.ID}
	}

	// Members are interchangeable once consistency holds; the consolidated
	// set is the representative patch.
	consolidated := []patch.Op{p.Representative}

	result := &PromotionResult{PatternID: p.ID}
	docPath := a.loader.BaselinePath(p.Skill)
	before, err := os.ReadFile(docPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read baseline document for skill %q", p.Skill)
	}

	doc := document.Parse(p.Skill, string(before))
	patched, results := patch.Apply(doc, consolidated)
	result.Results = append(result.Results, results...)

	if patch.Failed(results) {
		errs := &multierror.Error{}
		for _, r := range results {
			if r.Err != nil {
				errs = multierror.Append(errs, errors.Wrapf(r.Err, "op %s", r.Op.String()))
			}
		}
		return result, errors.Wrapf(errs.ErrorOrNil(), "promotion of pattern %s aborted", p.ID)
	}

	result.Changes = append(result.Changes, DocumentChange{
		Skill:        p.Skill,
		DocumentPath: docPath,
		Before:       string(before),
		After:        patched.Render(),
	})
	return result, nil
}

// Promote applies a ready pattern to the user-scope baseline. On success the
// pattern becomes generalized and every member refinement is archived. On
// any failure no baseline document is modified and the pattern stays ready.
func (a *Applier) Promote(ctx context.Context, patternID string) (*PromotionResult, error) {
	log := logger.G(ctx).WithField("pattern", patternID)

	p, err := a.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}

	// Take the per-document locks up front so planning and writing see the
	// same baseline contents. Promotions touching disjoint documents do not
	// contend.
	docPath := a.loader.BaselinePath(p.Skill)
	unlock, err := a.lockBaseline(docPath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := a.Plan(ctx, patternID)
	if err != nil {
		return result, err
	}
	result.PromotionID = "PROMO-" + uuid.NewString()

	// Backup phase: every document must have a verified snapshot before the
	// first write happens.
	for i := range result.Changes {
		change := &result.Changes[i]
		backupPath, err := a.writeBackup(change.Skill, change.DocumentPath, change.Before)
		if err != nil {
			return result, err
		}
		change.BackupPath = backupPath
	}

	// Write phase. If a later write fails, restore the earlier ones from
	// their snapshots so the promotion stays all-or-nothing.
	var written []DocumentChange
	for _, change := range result.Changes {
		if err := atomicWrite(change.DocumentPath, []byte(change.After)); err != nil {
			restoreErr := a.restore(written)
			if restoreErr != nil {
				err = multierror.Append(err, restoreErr)
			}
			return result, errors.Wrapf(err, "failed to write baseline for skill %q", change.Skill)
		}
		written = append(written, change)
	}

	promotion := refinement.Promotion{
		ID:        result.PromotionID,
		PatternID: p.ID,
		MemberIDs: p.MemberIDs,
		CreatedAt: a.now().UTC(),
	}
	for _, change := range result.Changes {
		promotion.Backups = append(promotion.Backups, refinement.Backup{
			Skill:        change.Skill,
			DocumentPath: change.DocumentPath,
			BackupPath:   change.BackupPath,
		})
	}
	if err := a.store.SavePromotion(ctx, promotion); err != nil {
		return result, err
	}

	p.Status = refinement.PatternGeneralized
	p.UpdatedAt = a.now().UTC()
	if err := a.store.SavePattern(ctx, p); err != nil {
		return result, err
	}
	for _, memberID := range p.MemberIDs {
		if err := a.store.SetRefinementStatus(ctx, memberID, refinement.StatusArchived); err != nil {
			return result, errors.Wrapf(err, "failed to archive member %s", memberID)
		}
	}

	log.WithField("promotion", promotion.ID).Info("pattern generalized into baseline")
	return result, nil
}

// Dismiss terminally closes a pattern with a reason.
func (a *Applier) Dismiss(ctx context.Context, patternID, reason string) error {
	p, err := a.store.GetPattern(ctx, patternID)
	if err != nil {
		return err
	}
	if p.Terminal() {
		return errors.Errorf("pattern %s is already %s", p.ID, p.Status)
	}
	p.Status = refinement.PatternDismissed
	p.DismissedReason = reason
	p.UpdatedAt = a.now().UTC()
	return a.store.SavePattern(ctx, p)
}

// Rollback restores the baselines recorded by the pattern's most recent
// promotion, reopens the pattern as ready and returns its members to
// applied.
func (a *Applier) Rollback(ctx context.Context, patternID string) error {
	promotion, err := a.store.LatestPromotion(ctx, patternID)
	if err != nil {
		return err
	}

	for _, backup := range promotion.Backups {
		unlock, err := a.lockBaseline(backup.DocumentPath)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(backup.BackupPath)
		if err == nil {
			err = atomicWrite(backup.DocumentPath, data)
		}
		unlock()
		if err != nil {
			return errors.Wrapf(err, "failed to restore %s", backup.DocumentPath)
		}
	}

	p, err := a.store.GetPattern(ctx, patternID)
	if err != nil {
		return err
	}
	p.Status = refinement.PatternReady
	p.UpdatedAt = a.now().UTC()
	if err := a.store.SavePattern(ctx, p); err != nil {
		return err
	}
	for _, memberID := range promotion.MemberIDs {
		if err := a.store.SetRefinementStatus(ctx, memberID, refinement.StatusApplied); err != nil {
			return errors.Wrapf(err, "failed to reopen member %s", memberID)
		}
	}
	logger.G(ctx).WithField("pattern", patternID).Info("promotion rolled back from backup")
	return nil
}

func (a *Applier) memberOps(ctx context.Context, p *refinement.Pattern) ([]patch.Op, error) {
	ops := make([]patch.Op, 0, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		r, err := a.store.GetRefinement(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %s references member %s", p.ID, id)
		}
		ops = append(ops, r.Proposed)
	}
	return ops, nil
}

// lockBaseline acquires the exclusive per-document lock, bounded by the
// configured timeout.
func (a *Applier) lockBaseline(docPath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create baseline directory")
	}

	type outcome struct {
		unlock func()
		err    error
	}
	mu := lockedfile.MutexAt(docPath + ".lock")
	ch := make(chan outcome, 1)
	go func() {
		unlock, err := mu.Lock()
		ch <- outcome{unlock, err}
	}()

	select {
	case got := <-ch:
		if got.err != nil {
			return nil, errors.Wrap(got.err, "failed to lock baseline document")
		}
		return got.unlock, nil
	case <-time.After(a.lockTimeout):
		// release the lock if the stale attempt wins later
		go func() {
			if got := <-ch; got.err == nil {
				got.unlock()
			}
		}()
		return nil, &LockTimeoutError{Path: docPath, Timeout: a.lockTimeout}
	}
}

// writeBackup snapshots the current content and verifies it read back
// intact. The snapshot is retained even if the promotion later fails.
func (a *Applier) writeBackup(skill, docPath, content string) (string, error) {
	dir := filepath.Join(a.backupDir, skill)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &BackupFailureError{Path: docPath, Cause: err}
	}

	name := filepath.Base(docPath) + "." + a.now().UTC().Format("20060102T150405.000000000") + ".bak"
	backupPath := filepath.Join(dir, name)
	if err := atomicWrite(backupPath, []byte(content)); err != nil {
		return "", &BackupFailureError{Path: docPath, Cause: err}
	}

	verify, err := os.ReadFile(backupPath)
	if err != nil {
		return "", &BackupFailureError{Path: docPath, Cause: err}
	}
	if string(verify) != content {
		return "", &BackupFailureError{Path: docPath, Cause: errors.New("backup content mismatch")}
	}
	return backupPath, nil
}

// atomicWrite writes via a temp file and rename so readers never observe a
// half-written document.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
