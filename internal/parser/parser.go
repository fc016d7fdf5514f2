// Package parser extracts note references, frontmatter, titles, and tags
// from note content.
package parser

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extensions are the recognized note file extensions. Matching is
// case-sensitive.
var Extensions = []string{"md", "org", "txt", "rmd", "ipynb"}

var (
	// A reference is a stem of word characters and hyphens starting with a
	// word character, a dot, and a recognized extension. An optional run of
	// relative directory segments ("../", "sub/") may precede it.
	linkRe   = regexp.MustCompile(`(?:(?:\.\.?|[\w-]+)/)*\b\w[\w-]*\.(?:` + strings.Join(Extensions, "|") + `)\b`)
	tagRe    = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	orgTitle = regexp.MustCompile(`(?m)^#\+(?i:title):\s*(.+)$`)
)

// Result holds the output of parsing a note.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, note references, and tags from raw
// note bytes. References are taken from the whole content, frontmatter
// included.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       ExtractLinks(string(data)),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// IsNote reports whether name carries a recognized note extension.
func IsNote(name string) bool {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ExtractLinks returns every note reference in content, deduplicated, in
// order of first appearance. Content without references yields nil.
func ExtractLinks(content string) []string {
	matches := linkRe.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep everything as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractTags collects #tags from body and from the frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch v := fm["tags"].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, then an org-mode
// #+title line, then the first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	if m := orgTitle.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
