// Package mentions extracts @slug tokens used to address agent
// participants in message content.
package mentions

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Parse returns the lowercased bodies of every @word token in content,
// in order of appearance, duplicates included. The scan has no notion of
// email boundaries: "user@example.com" yields "example".
func Parse(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	slugs := make([]string, 0, len(matches))
	for _, match := range matches {
		slugs = append(slugs, strings.ToLower(match[1]))
	}
	return slugs
}

// Has reports whether slug is mentioned in content. Matching is exact on
// the lowercased token, so "@vibes" does not satisfy "vibe".
func Has(content, slug string) bool {
	want := strings.ToLower(slug)
	for _, found := range Parse(content) {
		if found == want {
			return true
		}
	}
	return false
}
