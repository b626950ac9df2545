// Package patch applies targeted section-level edits to skill documents. An
// edit is an Op naming a section by path plus an optional in-section marker.
// Ops are applied sequentially and report their outcome individually; a
// failing op never aborts the rest of the set.
package patch

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Action identifies the kind of edit an Op performs.
type Action string

const (
	ActionAppend         Action = "append"
	ActionPrepend        Action = "prepend"
	ActionReplaceSection Action = "replace-section"
	ActionInsertAfter    Action = "insert-after"
	ActionInsertBefore   Action = "insert-before"
	ActionDeleteSection  Action = "delete-section"
)

// markerRequired lists which actions need a marker. For replace-section and
// delete-section the marker is a subsection name; for the insert actions it
// is a substring matched against content lines.
var markerRequired = map[Action]bool{
	ActionAppend:         false,
	ActionPrepend:        false,
	ActionReplaceSection: true,
	ActionInsertAfter:    true,
	ActionInsertBefore:   true,
	ActionDeleteSection:  true,
}

// Op is one atomic edit against a section. Ops are immutable once created
// and are grouped into ordered sets scoped to one skill.
type Op struct {
	TargetPath string `yaml:"target" json:"target"`
	Action     Action `yaml:"action" json:"action"`
	Marker     string `yaml:"marker,omitempty" json:"marker,omitempty"`
	Payload    string `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Validate checks the action is known and the marker/payload requirements for
// it hold.
func (o Op) Validate() error {
	required, known := markerRequired[o.Action]
	if !known {
		return errors.Errorf("unknown patch action %q", o.Action)
	}
	if o.TargetPath == "" {
		return errors.New("patch op requires a target path")
	}
	if required && o.Marker == "" {
		return errors.Errorf("action %q requires a marker", o.Action)
	}
	if !required && o.Marker != "" {
		return errors.Errorf("action %q does not take a marker", o.Action)
	}
	if o.Action != ActionDeleteSection && o.Payload == "" {
		return errors.Errorf("action %q requires a payload", o.Action)
	}
	if o.Action == ActionDeleteSection && o.Payload != "" {
		return errors.Errorf("action %q does not take a payload", o.Action)
	}
	return nil
}

func (o Op) String() string {
	if o.Marker != "" {
		return fmt.Sprintf("%s %s (marker %q)", o.Action, o.TargetPath, o.Marker)
	}
	return fmt.Sprintf("%s %s", o.Action, o.TargetPath)
}

// Result reports the outcome of a single op.
type Result struct {
	Op      Op
	OK      bool
	Warning string
	Err     error
}

// Failed reports whether any result in the set carries an error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Warned reports whether any result in the set carries a warning.
func Warned(results []Result) bool {
	for _, r := range results {
		if r.Warning != "" {
			return true
		}
	}
	return false
}

// SectionNotFoundError indicates an op's target path does not exist in the
// document.
type SectionNotFoundError struct {
	Path string
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section not found: %s", e.Path)
}

// MarkerNotFoundError indicates no content line (or subsection, for
// replace/delete) matched the op's marker.
type MarkerNotFoundError struct {
	Path   string
	Marker string
}

func (e *MarkerNotFoundError) Error() string {
	return fmt.Sprintf("marker %q not found in section %s", e.Marker, e.Path)
}

// normalizeLine collapses runs of whitespace so marker matching is tolerant
// of indentation and alignment differences.
func normalizeLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitPayload turns a payload into lines for insertion into section content.
func splitPayload(payload string) []string {
	return strings.Split(strings.TrimRight(payload, "\n"), "\n")
}
