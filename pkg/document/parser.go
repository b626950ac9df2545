package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Parse builds a Document from markdown source. Parsing is pure and total:
// malformed input produces a document with a single root section plus parse
// warnings, never an error, so downstream patch application can still be
// attempted against it.
func Parse(skill, src string) *Document {
	doc := &Document{
		Skill: skill,
		Root:  &Section{},
	}

	body := src
	if frontmatter, rest, ok := splitFrontmatter(src); ok {
		doc.frontmatter = frontmatter
		body = rest
		doc.Meta = decodeFrontmatter(doc, src)
	} else if strings.HasPrefix(src, "---") {
		doc.warn(1, "unterminated frontmatter block, treating as content")
	}

	buildTree(doc, body)
	return doc
}

// splitFrontmatter separates a leading YAML frontmatter block from the body.
// The returned frontmatter includes both delimiter lines and the trailing
// newline so rendering round-trips byte for byte.
func splitFrontmatter(src string) (frontmatter, body string, ok bool) {
	if !strings.HasPrefix(src, "---\n") && src != "---" {
		return "", src, false
	}
	lines := strings.SplitAfter(src, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[:i+1], ""), strings.Join(lines[i+1:], ""), true
		}
	}
	return "", src, false
}

// decodeFrontmatter runs goldmark over the source to decode the YAML
// frontmatter. Decode failures degrade to a warning.
func decodeFrontmatter(doc *Document, src string) map[string]interface{} {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert([]byte(src), &buf, parser.WithContext(pctx)); err != nil {
		doc.warn(1, fmt.Sprintf("frontmatter decode failed: %v", err))
		return nil
	}
	return meta.Get(pctx)
}

// buildTree scans body lines for ATX headings outside fenced code blocks and
// assembles the section tree.
func buildTree(doc *Document, body string) {
	lines := strings.Split(body, "\n")
	// Split leaves a phantom empty line after a trailing newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	stack := []*Section{doc.Root}
	seen := map[string]bool{}
	inFence := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		level, name := headingOf(line)
		if inFence || level == 0 {
			top := stack[len(stack)-1]
			top.Content = append(top.Content, line)
			continue
		}

		for len(stack) > 1 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]

		sec := &Section{
			Name:    name,
			Path:    JoinPath(parent.Path, name),
			Level:   level,
			Heading: line,
		}
		key := strings.ToLower(sec.Path)
		if seen[key] {
			doc.warn(i+1, fmt.Sprintf("duplicate section path %q, lookups resolve to the first occurrence", sec.Path))
		}
		seen[key] = true

		parent.Children = append(parent.Children, sec)
		stack = append(stack, sec)
	}

	if inFence {
		doc.warn(len(lines), "unterminated code fence")
	}
}

// headingOf returns the ATX heading level and text of a line, or (0, "") when
// the line is not a heading.
func headingOf(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, ""
	}
	rest := trimmed[level:]
	if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
		return 0, ""
	}
	name := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	if name == "" {
		return 0, ""
	}
	return level, name
}

func (d *Document) warn(line int, message string) {
	d.Warnings = append(d.Warnings, ParseWarning{Line: line, Message: message})
}
