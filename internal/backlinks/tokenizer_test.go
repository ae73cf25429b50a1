package backlinks

import (
	"slices"
	"testing"
)

func TestTokenize_KindsInOrder(t *testing.T) {
	text := "Intro [[A]]\n# Head [[B]]\nbody\n---\n### Backlinks\n- [[C]]"
	toks := Tokenize(text)

	var kinds []TokenKind
	var values []string
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
		values = append(values, tok.Value)
		if text[tok.Start:tok.End] != tok.Value && tok.Kind != TokenLink {
			t.Errorf("span [%d,%d) = %q, value %q", tok.Start, tok.End, text[tok.Start:tok.End], tok.Value)
		}
	}

	// "Intro ", [[A]], "\n", "# Head [[B]]" with its nested link, "\nbody\n",
	// "---\n### Backlinks", "\n- ", [[C]].
	want := []TokenKind{
		TokenText, TokenLink, TokenText,
		TokenHeading, TokenLink,
		TokenText,
		TokenHeading,
		TokenText, TokenLink,
	}
	if !slices.Equal(kinds, want) {
		t.Fatalf("kinds = %v, want %v (values %q)", kinds, want, values)
	}
	if values[6] != "---\n### Backlinks" {
		t.Errorf("heading span = %q", values[6])
	}
}

func TestTokenize_TextTokensCoverNonHeadingText(t *testing.T) {
	text := "plain text only"
	toks := Tokenize(text)
	if len(toks) != 1 || toks[0].Kind != TokenText || toks[0].Value != text {
		t.Fatalf("tokens = %+v", toks)
	}
	if got := Tokenize(""); len(got) != 0 {
		t.Errorf("empty text tokens = %+v", got)
	}
}

func TestHeadings(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "no headings\n#tag here", nil},
		{"levels", "# One\n## Two\n###### Six", []string{"# One", "## Two", "###### Six"}},
		{"tab separator", "#\tTabbed", []string{"#\tTabbed"}},
		{"bare hashes", "###\n#", nil},
		{"rule prefix", "text\n---\n### Backlinks", []string{"---\n### Backlinks"}},
		{"rule not adjacent", "---\n\n## Far", []string{"## Far"}},
		{"indented is not heading", "  # code", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, tok := range Tokenize(tt.text) {
				if tok.Kind == TokenHeading {
					got = append(got, tok.Value)
				}
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("headings of %q = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple", "see [[A]] and [[B]]", []string{"A", "B"}},
		{"duplicates kept", "[[A]] [[A]]", []string{"A", "A"}},
		{"non greedy", "[[A]] x ]] [[B/c]]", []string{"A", "B/c"}},
		{"no line crossing", "[[broken\nlink]] [[ok]]", []string{"ok"}},
		{"unterminated", "[[open", []string{}},
		{"empty", "[[]]", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Links(tt.text)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Links(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestReferences_SubLinks(t *testing.T) {
	tests := []struct {
		text  string
		title string
		want  bool
	}{
		{"[[Project]]", "Project", true},
		{"[[Project/Notes]]", "Project", true},
		{"[[Project#Goals]]", "Project", true},
		{"[[ProjectX]]", "Project", false},
		{"[[project]]", "Project", false},
		{"[[a.b (c)]]", "a.b (c)", true},
		{"[[axb (c)]]", "a.b (c)", false},
		{"[[Project]]", "", false},
		{"no links", "Project", false},
	}
	for _, tt := range tests {
		if got := References(tt.text, tt.title); got != tt.want {
			t.Errorf("References(%q, %q) = %v, want %v", tt.text, tt.title, got, tt.want)
		}
	}
}
