package filesink

import "strings"

// SanitizeTopic reduces a topic string to the filesystem-safe form from
// spec.md §4.8 / GLOSSARY: lowercase, keep [a-z0-9] and spaces, collapse
// whitespace to a single underscore.
func SanitizeTopic(topic string) string {
	lower := strings.ToLower(topic)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	return strings.Join(fields, "_")
}
