package patch

import (
	"fmt"
	"strings"

	"github.com/jdeola/skillbase/pkg/document"
)

// Apply runs ops in order against the document and returns the patched
// document plus one Result per op. The input document is never mutated; each
// op sees the document state left by the previous op, so a later op may
// target content inserted by an earlier one. Failures are reported per op
// and never abort the set.
func Apply(doc *document.Document, ops []Op) (*document.Document, []Result) {
	working := doc.Clone()
	results := make([]Result, 0, len(ops))

	for _, op := range ops {
		result := Result{Op: op}
		if err := op.Validate(); err != nil {
			result.Err = err
			results = append(results, result)
			continue
		}

		target := working.Find(op.TargetPath)
		if target == nil {
			result.Err = &SectionNotFoundError{Path: op.TargetPath}
			results = append(results, result)
			continue
		}

		switch op.Action {
		case ActionAppend:
			target.Content = append(target.Content, splitPayload(op.Payload)...)
			result.OK = true
		case ActionPrepend:
			target.Content = append(splitPayload(op.Payload), target.Content...)
			result.OK = true
		case ActionInsertAfter, ActionInsertBefore:
			result = applyInsert(target, op)
		case ActionReplaceSection:
			result = applyReplace(target, op)
		case ActionDeleteSection:
			result = applyDelete(target, op)
		}
		results = append(results, result)
	}

	return working, results
}

// applyInsert places the payload adjacent to the first content line that
// contains the marker as a substring. Matching is case-sensitive over
// whitespace-normalized lines. Ambiguity is resolved by taking the first
// match and warning, never by failing.
func applyInsert(target *document.Section, op Op) Result {
	result := Result{Op: op}
	marker := normalizeLine(op.Marker)

	matched := -1
	matches := 0
	for i, line := range target.Content {
		if strings.Contains(normalizeLine(line), marker) {
			if matched == -1 {
				matched = i
			}
			matches++
		}
	}

	if matched == -1 {
		result.Err = &MarkerNotFoundError{Path: op.TargetPath, Marker: op.Marker}
		return result
	}
	if matches > 1 {
		result.Warning = fmt.Sprintf("marker %q matches %d lines in %s, using the first", op.Marker, matches, op.TargetPath)
	}

	at := matched
	if op.Action == ActionInsertAfter {
		at++
	}
	payload := splitPayload(op.Payload)
	content := make([]string, 0, len(target.Content)+len(payload))
	content = append(content, target.Content[:at]...)
	content = append(content, payload...)
	content = append(content, target.Content[at:]...)
	target.Content = content
	result.OK = true
	return result
}

// applyReplace swaps the entire span of the named subsection, children
// included, for the payload. Replacing with an identical payload is
// idempotent.
func applyReplace(target *document.Section, op Op) Result {
	result := Result{Op: op}
	child, _ := target.Child(op.Marker)
	if child == nil {
		result.Err = &MarkerNotFoundError{Path: op.TargetPath, Marker: op.Marker}
		return result
	}

	child.Content = splitPayload(op.Payload)
	child.Children = nil
	result.OK = true
	return result
}

// applyDelete removes the named subsection and everything under it.
func applyDelete(target *document.Section, op Op) Result {
	result := Result{Op: op}
	child, idx := target.Child(op.Marker)
	if child == nil {
		result.Err = &MarkerNotFoundError{Path: op.TargetPath, Marker: op.Marker}
		return result
	}

	target.Children = append(target.Children[:idx], target.Children[idx+1:]...)
	result.OK = true
	return result
}
