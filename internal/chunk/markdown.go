package chunk

import (
	"regexp"
	"strings"
)

var (
	headingPattern     = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n.*?\n---\n?`)
)

// markdownChunker splits Markdown into heading-delimited sections before
// applying the token budget. Each chunk carries the heading path it falls
// under.
type markdownChunker struct {
	text *textChunker
}

func newMarkdownChunker(opts Options) *markdownChunker {
	return &markdownChunker{text: newTextChunker(opts)}
}

func (c *markdownChunker) chunk(content string) []*Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []*Chunk
	lineOffset := 0

	if fm := frontmatterPattern.FindString(content); fm != "" {
		chunks = append(chunks, &Chunk{
			Content:   strings.TrimSpace(fm),
			StartLine: 1,
			EndLine:   strings.Count(fm, "\n"),
			Metadata:  map[string]string{"type": "frontmatter"},
		})
		lineOffset = strings.Count(fm, "\n")
		content = content[len(fm):]
	}

	for _, sec := range splitSections(content) {
		for _, ck := range c.text.chunk(sec.body) {
			ck.StartLine += lineOffset + sec.startLine - 1
			ck.EndLine += lineOffset + sec.startLine - 1
			ck.Metadata["type"] = "section"
			if sec.path != "" {
				ck.Metadata["heading"] = sec.title
				ck.Metadata["heading_path"] = sec.path
			}
			chunks = append(chunks, ck)
		}
	}
	return chunks
}

type mdSection struct {
	title     string
	path      string // "Guide > Install > Linux"
	startLine int    // 1-indexed within the post-frontmatter content
	body      string
}

// splitSections breaks content at headings, tracking the heading hierarchy.
// Headings inside fenced code blocks are ignored. Content before the first
// heading forms a pathless section.
func splitSections(content string) []*mdSection {
	lines := strings.Split(content, "\n")
	trail := make([]string, 6)

	var sections []*mdSection
	cur := &mdSection{startLine: 1}
	var body []string
	inFence := false

	flush := func() {
		cur.body = strings.Join(body, "\n")
		if strings.TrimSpace(cur.body) != "" || cur.title != "" {
			sections = append(sections, cur)
		}
		body = nil
	}

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		m := headingPattern.FindStringSubmatch(line)
		if m == nil || inFence {
			body = append(body, line)
			continue
		}

		flush()
		level := len(m[1])
		trail[level-1] = m[2]
		for j := level; j < 6; j++ {
			trail[j] = ""
		}
		cur = &mdSection{
			title:     m[2],
			path:      joinTrail(trail, level),
			startLine: i + 1,
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func joinTrail(trail []string, level int) string {
	var parts []string
	for _, t := range trail[:level] {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " > ")
}
