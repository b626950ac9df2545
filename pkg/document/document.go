// Package document models a skill instruction document as an addressable tree
// of named sections. Documents are parsed from markdown with optional YAML
// frontmatter; sections are addressed by slash-joined heading names, e.g.
// "hooks/duplicate-check/EXCLUDE PATTERNS". Parsed documents are treated as
// immutable: mutation helpers operate on deep copies produced by Clone.
package document

import (
	"strings"
)

// Section is one addressable node in a document's structural tree.
type Section struct {
	// Name is the heading text as written in the source.
	Name string
	// Path is the slash-joined chain of names from the document root.
	Path string
	// Level is the heading level (1-6); 0 for the synthetic root.
	Level int
	// Heading is the raw heading line including the "#" prefix.
	Heading string
	// Content holds the lines between this heading and the first child
	// heading. Any content line can serve as a positional marker.
	Content []string
	// Children are the nested sections, in source order.
	Children []*Section
}

// ParseWarning records a recoverable problem found while parsing. The
// document remains usable.
type ParseWarning struct {
	Line    int
	Message string
}

// Document is an ordered tree of sections parsed from a skill file.
type Document struct {
	// Skill is the skill name this document belongs to.
	Skill string
	// Meta holds the decoded YAML frontmatter, if any.
	Meta map[string]interface{}
	// Root is the synthetic root section. Its content is the preamble
	// before the first heading; its children are the top-level sections.
	Root *Section
	// Warnings collects recoverable parse problems.
	Warnings []ParseWarning

	// frontmatter is the raw frontmatter block kept for round-tripping.
	frontmatter string
}

// Find returns the section at the given slash-delimited path, or nil. Path
// segments are matched against section names case-insensitively with
// surrounding whitespace ignored.
func (d *Document) Find(path string) *Section {
	segments := splitPath(path)
	if len(segments) == 0 {
		return d.Root
	}
	return findIn(d.Root, segments)
}

func findIn(sec *Section, segments []string) *Section {
	for _, child := range sec.Children {
		if !segmentEqual(child.Name, segments[0]) {
			continue
		}
		if len(segments) == 1 {
			return child
		}
		if found := findIn(child, segments[1:]); found != nil {
			return found
		}
	}
	return nil
}

// Child returns the direct child section whose name equals the given name,
// case-insensitively. The returned index is the child's position, -1 if absent.
func (s *Section) Child(name string) (*Section, int) {
	for i, child := range s.Children {
		if segmentEqual(child.Name, name) {
			return child, i
		}
	}
	return nil, -1
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	clone := &Document{
		Skill:       d.Skill,
		Root:        d.Root.clone(),
		frontmatter: d.frontmatter,
	}
	if d.Meta != nil {
		clone.Meta = make(map[string]interface{}, len(d.Meta))
		for k, v := range d.Meta {
			clone.Meta[k] = v
		}
	}
	clone.Warnings = append(clone.Warnings, d.Warnings...)
	return clone
}

func (s *Section) clone() *Section {
	copied := &Section{
		Name:    s.Name,
		Path:    s.Path,
		Level:   s.Level,
		Heading: s.Heading,
	}
	copied.Content = append(copied.Content, s.Content...)
	for _, child := range s.Children {
		copied.Children = append(copied.Children, child.clone())
	}
	return copied
}

// Render serializes the document back to markdown, preserving the original
// frontmatter block verbatim.
func (d *Document) Render() string {
	var b strings.Builder
	if d.frontmatter != "" {
		b.WriteString(d.frontmatter)
	}
	renderSection(&b, d.Root)
	return b.String()
}

func renderSection(b *strings.Builder, sec *Section) {
	if sec.Heading != "" {
		b.WriteString(sec.Heading)
		b.WriteString("\n")
	}
	for _, line := range sec.Content {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, child := range sec.Children {
		renderSection(b, child)
	}
}

// Walk visits every section depth-first, root first.
func (d *Document) Walk(fn func(*Section)) {
	walk(d.Root, fn)
}

func walk(sec *Section, fn func(*Section)) {
	fn(sec)
	for _, child := range sec.Children {
		walk(child, fn)
	}
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func segmentEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// JoinPath builds a child path from a parent path and a section name.
func JoinPath(parent, name string) string {
	name = strings.TrimSpace(name)
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
