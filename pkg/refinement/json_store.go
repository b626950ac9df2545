package refinement

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jdeola/skillbase/pkg/logger"
)

const (
	refinementsLogName = "refinements.jsonl"
	patternsFileName   = "patterns.json"
	promotionsFileName = "promotions.json"
)

// JSONStore keeps refinements in a JSONL log and patterns/promotions in JSON
// files. Every write goes through a file lock, so independent invocations
// (possibly from different projects) can share the directory safely. The
// refinement log is strictly append-only; the newest record per id wins.
type JSONStore struct {
	basePath string
}

// NewJSONStore creates the store directory if needed.
func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create refinement store directory")
	}
	return &JSONStore{basePath: basePath}, nil
}

func (s *JSONStore) logPath() string        { return filepath.Join(s.basePath, refinementsLogName) }
func (s *JSONStore) patternsPath() string   { return filepath.Join(s.basePath, patternsFileName) }
func (s *JSONStore) promotionsPath() string { return filepath.Join(s.basePath, promotionsFileName) }

// AppendRefinement appends one record to the log.
func (s *JSONStore) AppendRefinement(_ context.Context, r Refinement) error {
	return s.appendRecord(r)
}

func (s *JSONStore) appendRecord(r Refinement) error {
	line, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to marshal refinement")
	}
	err = lockedfile.Transform(s.logPath(), func(data []byte) ([]byte, error) {
		// guard against a torn final line from a crashed writer
		if len(data) > 0 && data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		return append(data, append(line, '\n')...), nil
	})
	return errors.Wrap(err, "failed to append refinement record")
}

// readLog replays the log and returns the current record per id, in first
// appearance order. Corrupt lines are skipped with a warning; the log must
// stay readable even if one writer crashed mid-append.
func (s *JSONStore) readLog(ctx context.Context) ([]Refinement, error) {
	data, err := lockedfile.Read(s.logPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read refinement log")
	}

	current := map[string]Refinement{}
	var order []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r Refinement
		if err := json.Unmarshal(line, &r); err != nil {
			logger.G(ctx).WithError(err).WithField("line", lineNo).Warn("skipping corrupt refinement log line")
			continue
		}
		if _, seen := current[r.ID]; !seen {
			order = append(order, r.ID)
		}
		current[r.ID] = r
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan refinement log")
	}

	out := make([]Refinement, 0, len(order))
	for _, id := range order {
		out = append(out, current[id])
	}
	return out, nil
}

// GetRefinement returns the latest record for an id.
func (s *JSONStore) GetRefinement(ctx context.Context, id string) (Refinement, error) {
	records, err := s.readLog(ctx)
	if err != nil {
		return Refinement{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Refinement{}, errors.Wrapf(ErrNotFound, "refinement %s", id)
}

// ListRefinements returns non-archived records in creation order.
func (s *JSONStore) ListRefinements(ctx context.Context, skill, targetPath string) ([]Refinement, error) {
	records, err := s.readLog(ctx)
	if err != nil {
		return nil, err
	}
	var out []Refinement
	for _, r := range records {
		if r.Status == StatusArchived {
			continue
		}
		if skill != "" && r.Skill != skill {
			continue
		}
		if targetPath != "" && r.TargetPath != targetPath {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetRefinementStatus appends a superseding record with the new status.
func (s *JSONStore) SetRefinementStatus(ctx context.Context, id string, status Status) error {
	r, err := s.GetRefinement(ctx, id)
	if err != nil {
		return err
	}
	r.Status = status
	return s.appendRecord(r)
}

func (s *JSONStore) readPatterns() (map[string]Pattern, error) {
	data, err := lockedfile.Read(s.patternsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Pattern{}, nil
		}
		return nil, errors.Wrap(err, "failed to read patterns file")
	}
	patterns := map[string]Pattern{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &patterns); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal patterns file")
		}
	}
	return patterns, nil
}

// ListPatterns returns all patterns ordered by creation time.
func (s *JSONStore) ListPatterns(_ context.Context) ([]Pattern, error) {
	patterns, err := s.readPatterns()
	if err != nil {
		return nil, err
	}
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetPattern returns a pattern by id.
func (s *JSONStore) GetPattern(_ context.Context, id string) (Pattern, error) {
	patterns, err := s.readPatterns()
	if err != nil {
		return Pattern{}, err
	}
	p, ok := patterns[id]
	if !ok {
		return Pattern{}, errors.Wrapf(ErrNotFound, "pattern %s", id)
	}
	return p, nil
}

// SavePattern inserts or replaces a pattern.
func (s *JSONStore) SavePattern(_ context.Context, p Pattern) error {
	err := lockedfile.Transform(s.patternsPath(), func(data []byte) ([]byte, error) {
		patterns := map[string]Pattern{}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &patterns); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal patterns file")
			}
		}
		patterns[p.ID] = p
		return json.MarshalIndent(patterns, "", "  ")
	})
	return errors.Wrap(err, "failed to save pattern")
}

// SavePromotion appends a promotion record.
func (s *JSONStore) SavePromotion(_ context.Context, p Promotion) error {
	err := lockedfile.Transform(s.promotionsPath(), func(data []byte) ([]byte, error) {
		var promotions []Promotion
		if len(data) > 0 {
			if err := json.Unmarshal(data, &promotions); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal promotions file")
			}
		}
		promotions = append(promotions, p)
		return json.MarshalIndent(promotions, "", "  ")
	})
	return errors.Wrap(err, "failed to save promotion")
}

// LatestPromotion returns the most recent promotion for a pattern.
func (s *JSONStore) LatestPromotion(_ context.Context, patternID string) (Promotion, error) {
	data, err := lockedfile.Read(s.promotionsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Promotion{}, errors.Wrapf(ErrNotFound, "no promotions for pattern %s", patternID)
		}
		return Promotion{}, errors.Wrap(err, "failed to read promotions file")
	}
	var promotions []Promotion
	if len(data) > 0 {
		if err := json.Unmarshal(data, &promotions); err != nil {
			return Promotion{}, errors.Wrap(err, "failed to unmarshal promotions file")
		}
	}
	for i := len(promotions) - 1; i >= 0; i-- {
		if promotions[i].PatternID == patternID {
			return promotions[i], nil
		}
	}
	return Promotion{}, errors.Wrapf(ErrNotFound, "no promotions for pattern %s", patternID)
}

// Close is a no-op for the JSON store.
func (s *JSONStore) Close() error { return nil }
