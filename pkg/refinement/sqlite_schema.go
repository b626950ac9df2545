package refinement

// SQL schema for the SQLite store. The refinements table is append-only:
// every status change inserts a new row for the same id and the row with the
// highest seq is the current record.

const currentSchemaVersion = 1

const createSchemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL
);
`

const createRefinementsTable = `
CREATE TABLE IF NOT EXISTS refinements (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    skill TEXT NOT NULL,
    target_path TEXT NOT NULL,
    expected_behavior TEXT NOT NULL,
    actual_behavior TEXT NOT NULL,
    proposed_op TEXT NOT NULL,
    project TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
`

const createRefinementsIDIndex = `
CREATE INDEX IF NOT EXISTS idx_refinements_id ON refinements(id, seq DESC);
`

const createRefinementsSkillTargetIndex = `
CREATE INDEX IF NOT EXISTS idx_refinements_skill_target ON refinements(skill, target_path);
`

const createPatternsTable = `
CREATE TABLE IF NOT EXISTS patterns (
    id TEXT PRIMARY KEY,
    skill TEXT NOT NULL,
    target_path TEXT NOT NULL,
    representative_op TEXT NOT NULL,
    member_ids TEXT NOT NULL,
    projects TEXT NOT NULL,
    status TEXT NOT NULL,
    dismissed_reason TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
`

const createPromotionsTable = `
CREATE TABLE IF NOT EXISTS promotions (
    id TEXT PRIMARY KEY,
    pattern_id TEXT NOT NULL,
    backups TEXT NOT NULL,
    member_ids TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
`

const createPromotionsPatternIndex = `
CREATE INDEX IF NOT EXISTS idx_promotions_pattern ON promotions(pattern_id, created_at DESC);
`

var schemaStatements = []string{
	createSchemaVersionTable,
	createRefinementsTable,
	createRefinementsIDIndex,
	createRefinementsSkillTargetIndex,
	createPatternsTable,
	createPromotionsTable,
	createPromotionsPatternIndex,
}

// selectCurrentRefinements picks the newest row per refinement id.
const selectCurrentRefinements = `
SELECT r.id, r.skill, r.target_path, r.expected_behavior, r.actual_behavior,
       r.proposed_op, r.project, r.status, r.created_at
FROM refinements r
JOIN (SELECT id, MAX(seq) AS max_seq FROM refinements GROUP BY id) latest
  ON r.id = latest.id AND r.seq = latest.max_seq
`
