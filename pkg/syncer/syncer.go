// Package syncer replicates refinement state files to a shared directory so
// patterns can accumulate evidence across machines. Sync is strictly best
// effort: file-level, newest-modification-time wins, retried on transient
// errors, and a failed sync never fails the local operation that triggered
// it.
package syncer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jdeola/skillbase/pkg/logger"
)

// stateFiles are the store files worth replicating.
var stateFiles = []string{
	"refinements.jsonl",
	"patterns.json",
	"promotions.json",
}

// Syncer mirrors state files between the local store directory and a remote
// (typically network-mounted) directory.
type Syncer struct {
	localDir  string
	remoteDir string
	attempts  uint
	delay     time.Duration
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithAttempts sets the per-file retry attempt count.
func WithAttempts(n uint) Option {
	return func(s *Syncer) { s.attempts = n }
}

// WithRetryDelay sets the base delay between retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Syncer) { s.delay = d }
}

// New creates a Syncer between the local store directory and remoteDir.
func New(localDir, remoteDir string, opts ...Option) *Syncer {
	s := &Syncer{
		localDir:  localDir,
		remoteDir: remoteDir,
		attempts:  3,
		delay:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync replicates each state file in whichever direction has the newer copy.
// It returns the folded errors for reporting, but callers must treat the
// result as advisory: a sync failure is a warning, never a failure of the
// operation that triggered it.
func (s *Syncer) Sync(ctx context.Context) error {
	log := logger.G(ctx).WithField("remote", s.remoteDir)

	if err := os.MkdirAll(s.remoteDir, 0o755); err != nil {
		log.WithError(err).Warn("sync skipped, remote directory unavailable")
		return errors.Wrap(err, "sync remote directory unavailable")
	}

	var errs *multierror.Error
	for _, name := range stateFiles {
		if err := s.syncFile(ctx, name); err != nil {
			log.WithError(err).WithField("file", name).Warn("sync failed for state file")
			errs = multierror.Append(errs, errors.Wrapf(err, "sync %s", name))
		}
	}
	return errs.ErrorOrNil()
}

func (s *Syncer) syncFile(ctx context.Context, name string) error {
	local := filepath.Join(s.localDir, name)
	remote := filepath.Join(s.remoteDir, name)

	localInfo, localErr := os.Stat(local)
	remoteInfo, remoteErr := os.Stat(remote)

	switch {
	case localErr != nil && remoteErr != nil:
		// neither side has the file yet
		return nil
	case remoteErr != nil || (localErr == nil && localInfo.ModTime().After(remoteInfo.ModTime())):
		return s.copyFile(ctx, local, remote)
	case localErr != nil || remoteInfo.ModTime().After(localInfo.ModTime()):
		return s.copyFile(ctx, remote, local)
	default:
		// same mtime, nothing to do
		return nil
	}
}

// copyFile copies src over dst atomically, retrying transient failures.
func (s *Syncer) copyFile(ctx context.Context, src, dst string) error {
	return retry.Do(
		func() error {
			data, err := os.ReadFile(src)
			if err != nil {
				return err
			}
			tmp := dst + ".sync.tmp"
			if err := os.WriteFile(tmp, data, 0o644); err != nil {
				return err
			}
			if err := os.Rename(tmp, dst); err != nil {
				os.Remove(tmp)
				return err
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
	)
}
