package backlinks

import "strings"

// References reports whether text contains a link to title, either exactly
// ([[Title]]) or to a part of it ([[Title/Heading]], [[Title#Heading]],
// [[Title|alias]]). Matching is case-sensitive.
func References(text, title string) bool {
	for _, target := range Links(text) {
		if matchesTitle(target, title) {
			return true
		}
	}
	return false
}

func matchesTitle(target, title string) bool {
	if title == "" || !strings.HasPrefix(target, title) {
		return false
	}
	if len(target) == len(title) {
		return true
	}
	switch target[len(title)] {
	case '/', '#', '|':
		return true
	}
	return false
}
