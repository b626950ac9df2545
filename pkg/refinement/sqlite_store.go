package refinement

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database file. It exists
// for installations where many projects funnel refinements into one shared
// state file and log replay gets expensive.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute %s", pragma)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *SQLiteStore) initializeSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to create schema")
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		currentSchemaVersion, time.Now().UTC())
	return errors.Wrap(err, "failed to record schema version")
}

type refinementRow struct {
	ID               string    `db:"id"`
	Skill            string    `db:"skill"`
	TargetPath       string    `db:"target_path"`
	ExpectedBehavior string    `db:"expected_behavior"`
	ActualBehavior   string    `db:"actual_behavior"`
	ProposedOp       string    `db:"proposed_op"`
	Project          string    `db:"project"`
	Status           string    `db:"status"`
	CreatedAt        time.Time `db:"created_at"`
}

func (row refinementRow) toRefinement() (Refinement, error) {
	r := Refinement{
		ID:               row.ID,
		Skill:            row.Skill,
		TargetPath:       row.TargetPath,
		ExpectedBehavior: row.ExpectedBehavior,
		ActualBehavior:   row.ActualBehavior,
		Project:          row.Project,
		Status:           Status(row.Status),
		CreatedAt:        row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.ProposedOp), &r.Proposed); err != nil {
		return Refinement{}, errors.Wrapf(err, "corrupt proposed op for refinement %s", row.ID)
	}
	return r, nil
}

func (s *SQLiteStore) insertRefinement(ctx context.Context, r Refinement) error {
	op, err := json.Marshal(r.Proposed)
	if err != nil {
		return errors.Wrap(err, "failed to marshal proposed op")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refinements (id, skill, target_path, expected_behavior, actual_behavior, proposed_op, project, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Skill, r.TargetPath, r.ExpectedBehavior, r.ActualBehavior, string(op), r.Project, string(r.Status), r.CreatedAt.UTC())
	return errors.Wrap(err, "failed to insert refinement")
}

// AppendRefinement records a new refinement row.
func (s *SQLiteStore) AppendRefinement(ctx context.Context, r Refinement) error {
	return s.insertRefinement(ctx, r)
}

// GetRefinement returns the latest record for an id.
func (s *SQLiteStore) GetRefinement(ctx context.Context, id string) (Refinement, error) {
	var row refinementRow
	err := s.db.GetContext(ctx, &row,
		selectCurrentRefinements+` WHERE r.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Refinement{}, errors.Wrapf(ErrNotFound, "refinement %s", id)
	}
	if err != nil {
		return Refinement{}, errors.Wrap(err, "failed to query refinement")
	}
	return row.toRefinement()
}

// ListRefinements returns non-archived current records in creation order.
func (s *SQLiteStore) ListRefinements(ctx context.Context, skill, targetPath string) ([]Refinement, error) {
	query := selectCurrentRefinements + ` WHERE r.status != ?`
	args := []interface{}{string(StatusArchived)}
	if skill != "" {
		query += ` AND r.skill = ?`
		args = append(args, skill)
	}
	if targetPath != "" {
		query += ` AND r.target_path = ?`
		args = append(args, targetPath)
	}
	query += ` ORDER BY r.created_at ASC, r.seq ASC`

	var rows []refinementRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to query refinements")
	}
	out := make([]Refinement, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRefinement()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SetRefinementStatus appends a superseding row with the new status.
func (s *SQLiteStore) SetRefinementStatus(ctx context.Context, id string, status Status) error {
	r, err := s.GetRefinement(ctx, id)
	if err != nil {
		return err
	}
	r.Status = status
	return s.insertRefinement(ctx, r)
}

type patternRow struct {
	ID               string         `db:"id"`
	Skill            string         `db:"skill"`
	TargetPath       string         `db:"target_path"`
	RepresentativeOp string         `db:"representative_op"`
	MemberIDs        string         `db:"member_ids"`
	Projects         string         `db:"projects"`
	Status           string         `db:"status"`
	DismissedReason  sql.NullString `db:"dismissed_reason"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (row patternRow) toPattern() (Pattern, error) {
	p := Pattern{
		ID:              row.ID,
		Skill:           row.Skill,
		TargetPath:      row.TargetPath,
		Status:          PatternStatus(row.Status),
		DismissedReason: row.DismissedReason.String,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.RepresentativeOp), &p.Representative); err != nil {
		return Pattern{}, errors.Wrapf(err, "corrupt representative op for pattern %s", row.ID)
	}
	if err := json.Unmarshal([]byte(row.MemberIDs), &p.MemberIDs); err != nil {
		return Pattern{}, errors.Wrapf(err, "corrupt member ids for pattern %s", row.ID)
	}
	if err := json.Unmarshal([]byte(row.Projects), &p.Projects); err != nil {
		return Pattern{}, errors.Wrapf(err, "corrupt projects for pattern %s", row.ID)
	}
	return p, nil
}

// ListPatterns returns all patterns ordered by creation time.
func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]Pattern, error) {
	var rows []patternRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM patterns ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query patterns")
	}
	out := make([]Pattern, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPattern()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetPattern returns a pattern by id.
func (s *SQLiteStore) GetPattern(ctx context.Context, id string) (Pattern, error) {
	var row patternRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM patterns WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Pattern{}, errors.Wrapf(ErrNotFound, "pattern %s", id)
	}
	if err != nil {
		return Pattern{}, errors.Wrap(err, "failed to query pattern")
	}
	return row.toPattern()
}

// SavePattern inserts or replaces a pattern.
func (s *SQLiteStore) SavePattern(ctx context.Context, p Pattern) error {
	op, err := json.Marshal(p.Representative)
	if err != nil {
		return errors.Wrap(err, "failed to marshal representative op")
	}
	members, err := json.Marshal(p.MemberIDs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal member ids")
	}
	projects, err := json.Marshal(p.Projects)
	if err != nil {
		return errors.Wrap(err, "failed to marshal projects")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO patterns (id, skill, target_path, representative_op, member_ids, projects, status, dismissed_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Skill, p.TargetPath, string(op), string(members), string(projects),
		string(p.Status), p.DismissedReason, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return errors.Wrap(err, "failed to save pattern")
}

// SavePromotion records a promotion.
func (s *SQLiteStore) SavePromotion(ctx context.Context, p Promotion) error {
	backups, err := json.Marshal(p.Backups)
	if err != nil {
		return errors.Wrap(err, "failed to marshal backups")
	}
	members, err := json.Marshal(p.MemberIDs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal member ids")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, pattern_id, backups, member_ids, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.PatternID, string(backups), string(members), p.CreatedAt.UTC())
	return errors.Wrap(err, "failed to save promotion")
}

type promotionRow struct {
	ID        string    `db:"id"`
	PatternID string    `db:"pattern_id"`
	Backups   string    `db:"backups"`
	MemberIDs string    `db:"member_ids"`
	CreatedAt time.Time `db:"created_at"`
}

// LatestPromotion returns the most recent promotion for a pattern.
func (s *SQLiteStore) LatestPromotion(ctx context.Context, patternID string) (Promotion, error) {
	var row promotionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM promotions WHERE pattern_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, patternID)
	if errors.Is(err, sql.ErrNoRows) {
		return Promotion{}, errors.Wrapf(ErrNotFound, "no promotions for pattern %s", patternID)
	}
	if err != nil {
		return Promotion{}, errors.Wrap(err, "failed to query promotions")
	}

	p := Promotion{
		ID:        row.ID,
		PatternID: row.PatternID,
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Backups), &p.Backups); err != nil {
		return Promotion{}, errors.Wrapf(err, "corrupt backups for promotion %s", row.ID)
	}
	if err := json.Unmarshal([]byte(row.MemberIDs), &p.MemberIDs); err != nil {
		return Promotion{}, errors.Wrapf(err, "corrupt member ids for promotion %s", row.ID)
	}
	return p, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
