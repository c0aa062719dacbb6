// Package parser extracts the searchable text, tags and cross-document
// links of a .mindmap file.
package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/starford/hippomind/internal/mindmap"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([\p{L}][\p{L}0-9_/-]*)`)
)

// Result holds what the library indexes for one document.
type Result struct {
	Document  *mindmap.Document
	Title     string
	Body      string
	Tags      []string
	Links     []string
	NodeCount int
}

// Parse decodes a document and summarizes it. Text is collected in tree
// order, then from orphans and text attachments.
func Parse(data []byte) (*Result, error) {
	doc, err := mindmap.Decode(data)
	if err != nil {
		return nil, err
	}

	var parts []string
	seen := make(map[string]bool, len(doc.Nodes))
	collect := func(n *mindmap.Node) {
		seen[n.ID] = true
		parts = append(parts, n.Text)
		if n.Data.Notes != "" {
			parts = append(parts, n.Data.Notes)
		}
	}
	doc.Walk(func(n *mindmap.Node, _ int) bool {
		collect(n)
		return true
	})
	var orphans []string
	for id := range doc.Nodes {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		collect(doc.Nodes[id])
	}
	for _, a := range mindmap.SortedAttachments(doc) {
		if a.Type == mindmap.AttachmentText && a.Text != "" {
			parts = append(parts, a.Text)
		}
	}
	body := strings.Join(parts, "\n")

	title := doc.Meta.Title
	if title == "" && doc.Root() != nil {
		title = doc.Root().Text
	}

	return &Result{
		Document:  doc,
		Title:     title,
		Body:      body,
		Tags:      extractTags(doc, body),
		Links:     extractLinks(body),
		NodeCount: len(doc.Nodes),
	}, nil
}

// extractLinks returns deduplicated [[wikilink]] targets found in node text
// and notes, normalising aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags merges node data tags with inline #tags, in first-seen order.
func extractTags(doc *mindmap.Document, body string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	doc.Walk(func(n *mindmap.Node, _ int) bool {
		for _, t := range n.Data.Tags {
			add(t)
		}
		return true
	})
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}
