package backlinks

import "strings"

// Composer renders backlinks blocks.
type Composer struct {
	header string
}

// NewComposer creates a Composer writing the given header.
func NewComposer(header string) Composer {
	if header == "" {
		header = DefaultHeader
	}
	return Composer{header: header}
}

// Compose returns the block for titles, or false when no block should exist.
func (c Composer) Compose(titles []string) (string, bool) {
	if len(titles) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(c.header)
	for _, t := range titles {
		b.WriteString("\n- [[")
		b.WriteString(t)
		b.WriteString("]]")
	}
	return b.String(), true
}

// Render returns the full note text for content followed by the block for titles.
func (c Composer) Render(content string, titles []string) string {
	block, ok := c.Compose(titles)
	if !ok {
		return content
	}
	return content + block
}
