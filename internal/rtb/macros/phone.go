package macros

import "strings"

// PlaceholderNoPlus keeps requests well-formed when a number has no digits at all.
const PlaceholderNoPlus = "5551234567"

// NoPlus strips a leading "+1" country code and every non-digit character.
// NoPlus(NoPlus(x)) == NoPlus(x).
func NoPlus(number string) string {
	s := strings.TrimSpace(number)
	s = strings.TrimPrefix(s, "+1")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return PlaceholderNoPlus
	}
	return b.String()
}
