package refinement

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a refinement, pattern or promotion does not
// exist. Callers check it with errors.Is.
var ErrNotFound = errors.New("not found")

// Store persists refinements, patterns and promotion records. Refinement
// writes are append-only across all implementations: SetRefinementStatus
// appends a superseding record rather than editing in place.
type Store interface {
	// AppendRefinement records a new refinement.
	AppendRefinement(ctx context.Context, r Refinement) error
	// GetRefinement returns the current (latest) record for an id.
	GetRefinement(ctx context.Context, id string) (Refinement, error)
	// ListRefinements returns all non-archived refinements in creation
	// order. Empty skill or targetPath means no filter on that field.
	ListRefinements(ctx context.Context, skill, targetPath string) ([]Refinement, error)
	// SetRefinementStatus appends a superseding record with the new status.
	SetRefinementStatus(ctx context.Context, id string, status Status) error

	ListPatterns(ctx context.Context) ([]Pattern, error)
	GetPattern(ctx context.Context, id string) (Pattern, error)
	// SavePattern inserts or replaces a pattern by id.
	SavePattern(ctx context.Context, p Pattern) error

	SavePromotion(ctx context.Context, p Promotion) error
	// LatestPromotion returns the most recent promotion for a pattern.
	LatestPromotion(ctx context.Context, patternID string) (Promotion, error)

	Close() error
}

// Config selects and locates a store backend.
type Config struct {
	// Backend is "json" or "sqlite".
	Backend string
	// BasePath is the state directory (default ~/.skillbase).
	BasePath string
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to get user home directory")
	}
	return Config{
		Backend:  "json",
		BasePath: filepath.Join(home, ".skillbase"),
	}, nil
}

// NewStore builds a store for the configured backend.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "json":
		return NewJSONStore(filepath.Join(cfg.BasePath, "refinements"))
	case "sqlite":
		return NewSQLiteStore(ctx, filepath.Join(cfg.BasePath, "skillbase.db"))
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}
