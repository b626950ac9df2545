package pattern

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jdeola/skillbase/pkg/logger"
	"github.com/jdeola/skillbase/pkg/patch"
	"github.com/jdeola/skillbase/pkg/refinement"
)

// DefaultGeneralizationThreshold is the distinct-project count at which a
// pattern becomes ready for generalization.
const DefaultGeneralizationThreshold = 2

// Aggregator matches incoming refinements against tracked patterns.
type Aggregator struct {
	store     refinement.Store
	threshold int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithThreshold overrides the distinct-project threshold.
func WithThreshold(threshold int) Option {
	return func(a *Aggregator) {
		if threshold > 0 {
			a.threshold = threshold
		}
	}
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store refinement.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     store,
		threshold: DefaultGeneralizationThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit records one new refinement against pattern tracking: it joins the
// first matching live pattern or starts a new one, then recomputes the
// pattern's readiness. The refinement must already be recorded in the store.
// The updated pattern is saved and returned.
//
// A pattern matches when skill and target path are equal, the payload clears
// the similarity threshold against the representative, and the pattern is
// not terminal. A refinement that would match a generalized or dismissed
// pattern starts a fresh pattern instead.
func (a *Aggregator) Submit(ctx context.Context, r refinement.Refinement) (refinement.Pattern, error) {
	log := logger.G(ctx).WithField("refinement", r.ID)

	patterns, err := a.store.ListPatterns(ctx)
	if err != nil {
		return refinement.Pattern{}, err
	}

	var matched *refinement.Pattern
	for i := range patterns {
		p := &patterns[i]
		if p.Terminal() || p.Skill != r.Skill || p.TargetPath != r.TargetPath {
			continue
		}
		if Similarity(p.Representative.Payload, r.Proposed.Payload) > SimilarityThreshold {
			matched = p
			break
		}
	}

	now := time.Now().UTC()
	var result refinement.Pattern
	if matched != nil {
		matched.MemberIDs = append(matched.MemberIDs, r.ID)
		matched.AddProject(r.Project)
		matched.UpdatedAt = now
		result = *matched
		log.WithField("pattern", result.ID).Debug("refinement joined existing pattern")
	} else {
		result = refinement.Pattern{
			ID:             refinement.NewID("PAT"),
			Skill:          r.Skill,
			TargetPath:     r.TargetPath,
			Representative: r.Proposed,
			MemberIDs:      []string{r.ID},
			Status:         refinement.PatternTracking,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		result.AddProject(r.Project)
		log.WithField("pattern", result.ID).Debug("refinement started new pattern")
	}

	if err := a.recomputeStatus(ctx, &result); err != nil {
		return refinement.Pattern{}, err
	}
	if err := a.store.SavePattern(ctx, result); err != nil {
		return refinement.Pattern{}, err
	}

	if result.Status == refinement.PatternReady {
		log.WithFields(map[string]interface{}{
			"pattern":  result.ID,
			"projects": len(result.Projects),
		}).Info("pattern ready for generalization")
	}
	return result, nil
}

// recomputeStatus promotes a tracking pattern to ready when the distinct
// project count reaches the threshold and the member set is consistent. A
// pattern whose members diverged below the consistency bar stays tracking
// even past the count threshold, for manual review rather than silent
// promotion.
func (a *Aggregator) recomputeStatus(ctx context.Context, p *refinement.Pattern) error {
	if p.Terminal() {
		return nil
	}
	if len(p.Projects) < a.threshold {
		p.Status = refinement.PatternTracking
		return nil
	}

	ops, err := a.MemberOps(ctx, p)
	if err != nil {
		return err
	}
	if Consistent(ops) {
		p.Status = refinement.PatternReady
	} else {
		p.Status = refinement.PatternTracking
		logger.G(ctx).WithField("pattern", p.ID).Warn("pattern past project threshold but members diverged, needs manual review")
	}
	return nil
}

// MemberOps fetches the proposed ops of every member refinement.
func (a *Aggregator) MemberOps(ctx context.Context, p *refinement.Pattern) ([]patch.Op, error) {
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

// ListReady returns patterns at or above the readiness threshold.
func (a *Aggregator) ListReady(ctx context.Context) ([]refinement.Pattern, error) {
	patterns, err := a.store.ListPatterns(ctx)
	if err != nil {
		return nil, err
	}
	var ready []refinement.Pattern
	for _, p := range patterns {
		if p.Status == refinement.PatternReady {
			ready = append(ready, p)
		}
	}
	return ready, nil
}
