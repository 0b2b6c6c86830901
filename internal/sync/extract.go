package sync

import (
	"strings"

	"github.com/mchan/issuelens/internal/github"
)

// Uncategorized is the sentinel product label for issues that match no
// product area. Every issue carries at least one product label.
const Uncategorized = "uncategorized"

// productFields and versionFields are the issue-form headings consulted when
// deriving product areas and target versions from a templated issue body.
var (
	productFields = []string{"Product", "Product Area", "Area"}
	versionFields = []string{"Target Version", "Version"}
)

// noResponseValues are the placeholders issue forms insert for skipped fields.
var noResponseValues = map[string]bool{
	"_no response_": true,
	"no response":   true,
	"none":          true,
	"n/a":           true,
}

// TemplateField extracts the value under the first matching "### <name>"
// heading of an issue-form body. Returns "" when the field is absent or
// holds a no-response placeholder.
func TemplateField(body string, names ...string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		heading := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "###"))
		if !strings.HasPrefix(strings.TrimSpace(line), "###") {
			continue
		}

		matched := false
		for _, name := range names {
			if strings.EqualFold(heading, name) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		// The value is the first non-empty line before the next heading.
		for _, valueLine := range lines[i+1:] {
			v := strings.TrimSpace(valueLine)
			if v == "" {
				continue
			}
			if strings.HasPrefix(v, "###") {
				break
			}
			if noResponseValues[strings.ToLower(v)] {
				return ""
			}
			return v
		}
		return ""
	}
	return ""
}

// TargetVersion derives an issue's target version: the body's version
// template field first, then the milestone title, then empty.
func TargetVersion(issue github.Issue) string {
	if v := TemplateField(issue.Body, versionFields...); v != "" {
		return v
	}
	return issue.Milestone
}

// ProductLabels derives an issue's product areas: template fields first,
// then Product-/Area- prefixed issue labels, then the uncategorized
// sentinel. The result is never empty.
func ProductLabels(issue github.Issue) []string {
	var products []string
	seen := map[string]bool{}

	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		products = append(products, p)
	}

	if v := TemplateField(issue.Body, productFields...); v != "" {
		// Issue forms render multi-select values comma-separated.
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	}

	if len(products) == 0 {
		for _, label := range issue.Labels {
			if strings.HasPrefix(label, "Product-") || strings.HasPrefix(label, "Area-") {
				add(label)
			}
		}
	}

	if len(products) == 0 {
		products = append(products, Uncategorized)
	}
	return products
}
