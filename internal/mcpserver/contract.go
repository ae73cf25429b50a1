package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/bearlinks/internal/backlinks"
)

// BlockFormatURI identifies the block format resource.
const BlockFormatURI = "bearlinks://block-format"

// BlockFormat describes the backlinks block maintained at the end of every
// note, so that clients editing notes leave it alone.
func BlockFormat(f backlinks.Format) string {
	f = backlinks.NewParser(f).Format()
	header := strings.TrimLeft(f.Header, "\n")
	recognized := f.Recognized
	if len(recognized) == 0 {
		recognized = []string{header}
	}

	var b strings.Builder
	b.WriteString("# Backlinks Block Format\n\n")
	b.WriteString("Every note that other notes link to ends with a generated backlinks block.\n")
	b.WriteString("The block is rewritten on every sync: do not edit it by hand, and do not\n")
	b.WriteString("add content after it.\n\n")

	b.WriteString("## Written form\n\n```markdown\n")
	b.WriteString(header)
	b.WriteString("\n- [[First linking note]]\n- [[Second linking note]]\n```\n\n")

	b.WriteString("## Recognized headers\n\n")
	for _, h := range recognized {
		fmt.Fprintf(&b, "- `%s`\n", strings.ReplaceAll(h, "\n", `\n`))
	}

	b.WriteString("\n## Rules\n\n")
	b.WriteString("1. A note is listed when its own text (outside its block) links to the title,\n")
	b.WriteString("   as `[[Title]]`, `[[Title/Heading]]`, `[[Title#Heading]]` or `[[Title|alias]]`.\n")
	b.WriteString("2. A note the body already links to is not listed.\n")
	b.WriteString("3. Entries are ordered by the linking note's modification (or creation)\n")
	b.WriteString("   time, oldest first.\n")
	b.WriteString("4. When no note links in, the block is removed entirely.\n")
	if f.Strategy == backlinks.StrategyHeading {
		b.WriteString("5. The block must be the last heading of the note; a recognized header\n")
		b.WriteString("   followed by another heading leaves the note untouched.\n")
	}
	return b.String()
}
