// Package backlinks computes and rewrites the generated backlinks section of notes.
package backlinks

import "strings"

// TokenKind classifies a span of note text.
type TokenKind int

const (
	TokenText TokenKind = iota
	TokenHeading
	TokenLink
)

func (k TokenKind) String() string {
	switch k {
	case TokenHeading:
		return "heading"
	case TokenLink:
		return "link"
	default:
		return "text"
	}
}

// Token is a span [Start, End) of the tokenized text.
//
// For headings Value is the span text (including a preceding "---" rule line
// when present). For links Value is the bracket content without the [[ ]]
// markers. Link tokens may lie inside a heading span; text tokens never
// overlap any other token.
type Token struct {
	Kind  TokenKind
	Start int
	End   int
	Value string
}

const ruleLine = "---"

// Tokenize splits text into heading, link, and text tokens ordered by start
// offset. A heading is a line of one or more '#' followed by a space or tab.
func Tokenize(text string) []Token {
	headings := scanHeadings(text)

	var out []Token
	pos := 0
	for _, h := range headings {
		out = appendInline(out, text, pos, h.Start)
		out = append(out, h)
		out = append(out, scanLinks(text, h.Start, h.End)...)
		pos = h.End
	}
	return appendInline(out, text, pos, len(text))
}

// Links returns the bracket contents of every [[link]] in text, in order of
// appearance, duplicates preserved.
func Links(text string) []string {
	toks := scanLinks(text, 0, len(text))
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.Value)
	}
	return out
}

// appendInline emits text and link tokens for text[from:to].
func appendInline(out []Token, text string, from, to int) []Token {
	pos := from
	for _, l := range scanLinks(text, from, to) {
		if l.Start > pos {
			out = append(out, Token{Kind: TokenText, Start: pos, End: l.Start, Value: text[pos:l.Start]})
		}
		out = append(out, l)
		pos = l.End
	}
	if to > pos {
		out = append(out, Token{Kind: TokenText, Start: pos, End: to, Value: text[pos:to]})
	}
	return out
}

// scanLinks finds [[...]] tokens inside text[from:to]. The content runs up to
// the first following "]]" and may not cross a line break.
func scanLinks(text string, from, to int) []Token {
	var out []Token
	i := from
	for i+1 < to {
		open := strings.Index(text[i:to], "[[")
		if open < 0 {
			break
		}
		start := i + open
		body := start + 2
		closeIdx := strings.Index(text[body:to], "]]")
		if closeIdx < 0 {
			break
		}
		value := text[body : body+closeIdx]
		if strings.ContainsAny(value, "\n\r") {
			i = start + 1
			continue
		}
		end := body + closeIdx + 2
		out = append(out, Token{Kind: TokenLink, Start: start, End: end, Value: value})
		i = end
	}
	return out
}

type line struct {
	start, end int
}

func splitLines(text string) []line {
	var out []line
	start := 0
	for start <= len(text) {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			out = append(out, line{start: start, end: len(text)})
			break
		}
		out = append(out, line{start: start, end: start + nl})
		start += nl + 1
	}
	return out
}

func scanHeadings(text string) []Token {
	lines := splitLines(text)
	var out []Token
	for i, ln := range lines {
		if !isHeadingLine(text[ln.start:ln.end]) {
			continue
		}
		start := ln.start
		if i > 0 && strings.TrimRight(text[lines[i-1].start:lines[i-1].end], "\r") == ruleLine {
			start = lines[i-1].start
		}
		out = append(out, Token{Kind: TokenHeading, Start: start, End: ln.end, Value: text[start:ln.end]})
	}
	return out
}

func isHeadingLine(s string) bool {
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	return n > 0 && n < len(s) && (s[n] == ' ' || s[n] == '\t')
}
