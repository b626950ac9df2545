// Package refinement persists observed gap-and-fix records and the recurring
// patterns clustered from them. Refinement writes are append-only: a status
// change appends a superseding record under the same id, so the full audit
// trail survives archiving and rollback.
package refinement

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/jdeola/skillbase/pkg/patch"
)

// Status is the lifecycle state of a refinement.
type Status string

const (
	// StatusPending means the refinement is recorded but not yet written
	// into a project override layer.
	StatusPending Status = "pending"
	// StatusApplied means the refinement has been written into a project
	// override layer.
	StatusApplied Status = "applied"
	// StatusArchived means the refinement's pattern was generalized (or the
	// record was superseded).
	StatusArchived Status = "archived"
)

// Refinement is a single observed gap-and-fix record with project
// provenance.
type Refinement struct {
	ID               string    `json:"id"`
	Skill            string    `json:"skill"`
	TargetPath       string    `json:"targetPath"`
	ExpectedBehavior string    `json:"expectedBehavior"`
	ActualBehavior   string    `json:"actualBehavior"`
	Proposed         patch.Op  `json:"proposedPatch"`
	Project          string    `json:"project"`
	CreatedAt        time.Time `json:"createdAt"`
	Status           Status    `json:"status"`
}

// PatternStatus is the lifecycle state of a pattern.
type PatternStatus string

const (
	PatternTracking    PatternStatus = "tracking"
	PatternReady       PatternStatus = "ready-for-generalization"
	PatternGeneralized PatternStatus = "generalized"
	PatternDismissed   PatternStatus = "dismissed"
)

// Pattern clusters refinements believed to represent the same underlying
// fix, tracked across projects for possible promotion into the baseline.
type Pattern struct {
	ID             string        `json:"id"`
	Skill          string        `json:"skill"`
	TargetPath     string        `json:"targetPath"`
	Representative patch.Op      `json:"representativePatch"`
	// MemberIDs are member refinement ids in discovery order.
	MemberIDs []string `json:"memberRefinementIds"`
	// Projects is a set with stable insertion order; resubmission from an
	// already-counted project does not grow it.
	Projects        []string      `json:"projects"`
	Status          PatternStatus `json:"status"`
	DismissedReason string        `json:"dismissedReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Terminal reports whether the pattern can no longer accept members.
func (p *Pattern) Terminal() bool {
	return p.Status == PatternGeneralized || p.Status == PatternDismissed
}

// HasProject reports whether the project is already counted.
func (p *Pattern) HasProject(project string) bool {
	for _, existing := range p.Projects {
		if existing == project {
			return true
		}
	}
	return false
}

// AddProject records a project, preserving set semantics.
func (p *Pattern) AddProject(project string) {
	if project == "" || p.HasProject(project) {
		return
	}
	p.Projects = append(p.Projects, project)
}

// Backup records where one baseline document was snapshotted during a
// promotion.
type Backup struct {
	Skill        string `json:"skill"`
	DocumentPath string `json:"documentPath"`
	BackupPath   string `json:"backupPath"`
}

// Promotion records one generalization write so it can be audited and rolled
// back.
type Promotion struct {
	ID        string    `json:"id"`
	PatternID string    `json:"patternId"`
	Backups   []Backup  `json:"backups"`
	MemberIDs []string  `json:"memberRefinementIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewID generates a time-ordered unique id with the given prefix, e.g.
// "REF-20240131T120000-1a2b3c4d5e6f7081".
func NewID(prefix string) string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "-" + timestamp + "-" + hex.EncodeToString(b)
}
