package normalize

import (
	"regexp"
	"strings"
)

var childCombinator = regexp.MustCompile(`\s*>\s*`)

// NormalizeSelector canonicalizes a CSS locator so that equivalent selectors
// reported by different tools compare equal.
func NormalizeSelector(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	s = childCombinator.ReplaceAllString(s, " > ")
	for _, prefix := range []string{"html > body > ", "html > "} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return s
}
