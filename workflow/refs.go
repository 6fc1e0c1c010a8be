package workflow

import "regexp"

var referencePattern = regexp.MustCompile(`@@([a-zA-Z0-9\-_]+)`)

// ParseReferences returns the block ids referenced as @@id in text, in
// order of appearance. Repeated references are kept.
func ParseReferences(text string) []string {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}
