package backlinks

import (
	"fmt"
	"strings"

	"github.com/starford/bearlinks/internal/apperr"
)

// Strategy selects how a prior backlinks block is located.
type Strategy string

const (
	// StrategyHeading treats the last heading span as the block when it
	// matches a recognized header.
	StrategyHeading Strategy = "heading"
	// StrategyLiteral splits on the first occurrence of the exact header.
	StrategyLiteral Strategy = "literal"
)

// DefaultHeader is the canonical header written in front of generated blocks.
const DefaultHeader = "\n\n---\n### Backlinks"

// DefaultRecognizedHeaders are the heading spans accepted as an existing block.
var DefaultRecognizedHeaders = []string{
	"---\n### Backlinks",
	"### Backlinks",
	"---\n## Backlinks",
	"## Backlinks",
}

// Format describes how backlinks blocks are written and recognized.
type Format struct {
	Strategy   Strategy
	Header     string
	Recognized []string
}

// DefaultFormat returns the heading-strategy format with the canonical header.
func DefaultFormat() Format {
	return Format{
		Strategy:   StrategyHeading,
		Header:     DefaultHeader,
		Recognized: DefaultRecognizedHeaders,
	}
}

// Parsed is a note text split into user content and a prior backlinks block.
type Parsed struct {
	Content  string
	Block    string
	HasBlock bool
	// Titles lists the link targets of the prior block in order, duplicates kept.
	Titles []string
}

// Parser splits note text according to a Format.
type Parser struct {
	format     Format
	recognized map[string]struct{}
}

// NewParser builds a Parser. The trimmed canonical header is always recognized.
func NewParser(f Format) *Parser {
	if f.Strategy == "" {
		f.Strategy = StrategyHeading
	}
	if f.Header == "" {
		f.Header = DefaultHeader
	}
	p := &Parser{format: f, recognized: make(map[string]struct{}, len(f.Recognized)+1)}
	for _, h := range f.Recognized {
		p.recognized[normalizeHeading(h)] = struct{}{}
	}
	p.recognized[normalizeHeading(f.Header)] = struct{}{}
	return p
}

// Format returns the parser's format.
func (p *Parser) Format() Format {
	return p.format
}

// Parse splits text into content and prior block. It returns an error
// wrapping apperr.ErrAmbiguousBacklinks when a recognized header is followed
// by further headings; such notes must not be modified.
func (p *Parser) Parse(text string) (Parsed, error) {
	if p.format.Strategy == StrategyLiteral {
		return p.parseLiteral(text), nil
	}
	return p.parseHeadings(text)
}

// Content returns the part of text that precedes its backlinks block. An
// ambiguous text is returned whole.
func (p *Parser) Content(text string) string {
	parsed, err := p.Parse(text)
	if err != nil {
		return text
	}
	return parsed.Content
}

func (p *Parser) parseLiteral(text string) Parsed {
	before, after, found := strings.Cut(text, p.format.Header)
	if !found {
		return Parsed{Content: text}
	}
	return Parsed{
		Content:  before,
		Block:    after,
		HasBlock: true,
		Titles:   Links(after),
	}
}

func (p *Parser) parseHeadings(text string) (Parsed, error) {
	toks := Tokenize(text)
	var headings []Token
	for _, t := range toks {
		if t.Kind == TokenHeading {
			headings = append(headings, t)
		}
	}

	last := len(headings) - 1
	for i, h := range headings {
		if !p.isBacklinksHeading(h.Value) {
			continue
		}
		if i != last {
			return Parsed{}, fmt.Errorf("backlinks: header %q at offset %d precedes %d more heading(s): %w",
				strings.TrimSpace(h.Value), h.Start, last-i, apperr.ErrAmbiguousBacklinks)
		}
		titles := []string{}
		for _, t := range toks {
			if t.Kind == TokenLink && t.Start >= h.Start {
				titles = append(titles, t.Value)
			}
		}
		return Parsed{
			Content:  p.trimGap(text[:h.Start]),
			Block:    text[h.Start:],
			HasBlock: true,
			Titles:   titles,
		}, nil
	}
	return Parsed{Content: text}, nil
}

// trimGap removes the newlines the composer writes in front of the block,
// at most as many as the canonical header starts with. Blank lines beyond
// that belong to the note.
func (p *Parser) trimGap(content string) string {
	gap := len(p.format.Header) - len(strings.TrimLeft(p.format.Header, "\n"))
	for range gap {
		trimmed, ok := strings.CutSuffix(content, "\n")
		if !ok {
			break
		}
		content = trimmed
	}
	return content
}

func (p *Parser) isBacklinksHeading(span string) bool {
	_, ok := p.recognized[normalizeHeading(span)]
	return ok
}

// normalizeHeading trims surrounding blank lines and trailing whitespace so
// configured headers compare equal to heading spans found in text.
func normalizeHeading(s string) string {
	s = strings.TrimLeft(s, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRight(s, " \t\r\n")
}
