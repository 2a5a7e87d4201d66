package show

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	pipeSplit = regexp.MustCompile(`\s*\|\s*`)
	bbcodeTag = regexp.MustCompile(`(?i)\[/?(i|b|u|spoiler|quote|code)\]`)
	spaceRuns = regexp.MustCompile(`[ \t]+`)
)

// SplitPipe splits a pipe-joined title/tag list into its parts,
// deduplicating case-insensitively while preserving first-seen casing
// and order.
func SplitPipe(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	for _, p := range pipeSplit.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return dedupeFold(parts)
}

// dedupeFold removes empty entries and case-insensitive duplicates,
// keeping first-seen casing and order.
func dedupeFold(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// CleanDescription strips AniDB BBCode markers and HTML markup from a
// synopsis and collapses runs of spaces. Descriptions arrive in both
// markups depending on which upstream produced them.
func CleanDescription(desc string) string {
	if desc == "" {
		return ""
	}
	text := bbcodeTag.ReplaceAllString(desc, "")
	if strings.ContainsAny(text, "<>") {
		text = stripHTML(text)
	}
	return strings.TrimSpace(spaceRuns.ReplaceAllString(text, " "))
}

// stripHTML extracts the text content of an HTML fragment. A tokenizer
// pass keeps text between tags and drops everything else; parse errors
// terminate the scan with whatever text was collected.
func stripHTML(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
		}
	}
}
