package catalog

import (
	"fmt"
	"strings"
)

// Match returns the first compiled row whose wildcard pattern matches the
// spoken command. Rows are scanned in compile order.
func (c *Catalog) Match(command string) (Command, bool) {
	for _, row := range c.Commands {
		if WildcardMatch(row.Wildcard, command) {
			return row, true
		}
	}
	return Command{}, false
}

// ExtractValue recovers the spoken value from a matched command. A trailing
// marker takes everything after the literal prefix; a marker elsewhere is
// parsed scanf-style and captures a single word. Rows without a marker have
// no value.
func ExtractValue(row Command, command string) string {
	switch {
	case strings.HasSuffix(row.Extract, ValueMarker):
		prefix := strings.TrimSuffix(row.Extract, ValueMarker)
		return strings.TrimPrefix(command, prefix)
	case strings.Contains(row.Extract, ValueMarker):
		var value string
		if _, err := fmt.Sscanf(command, scanfFormat(row.Extract), &value); err != nil {
			return ""
		}
		return value
	default:
		return ""
	}
}

func scanfFormat(extract string) string {
	var b strings.Builder
	for i := 0; i < len(extract); {
		if extract[i] == '%' {
			if strings.HasPrefix(extract[i:], ValueMarker) {
				b.WriteString("%s")
				i += len(ValueMarker)
				continue
			}
			b.WriteString("%%")
			i++
			continue
		}
		b.WriteByte(extract[i])
		i++
	}
	return b.String()
}

// WildcardMatch reports whether s matches pattern, where '*' matches any
// run of characters including the empty one. Every other byte is literal;
// the pattern language is deliberately smaller than path.Match's. The music
// playlist search shares it, so spoken commands and file matching agree on
// what a wildcard means.
func WildcardMatch(pattern, s string) bool {
	var p, i int
	star, mark := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, i
			p++
		case p < len(pattern) && pattern[p] == s[i]:
			p++
			i++
		case star >= 0:
			mark++
			p, i = star+1, mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
