// Package citation links numeric [n] markers in generated text to the source
// URLs returned by the search API.
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	mappingLine = regexp.MustCompile(`^\[(\d+)\]:\s*(.+)$`)
	marker      = regexp.MustCompile(`\[(\d+)\]`)
)

// Parse reads "[n]: URL" lines into a marker-number to URL map. Lines that do
// not match are ignored.
func Parse(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		m := mappingLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		out[m[1]] = strings.TrimSpace(m[2])
	}
	return out
}

// Rewrite turns every [n] with a known URL into the markdown link [n](URL).
// Unknown markers and markers already followed by "(" are left alone, so
// rewriting twice is the same as rewriting once.
func Rewrite(body string, mapping map[string]string) string {
	if len(mapping) == 0 || body == "" {
		return body
	}

	idx := marker.FindAllStringSubmatchIndex(body, -1)
	if idx == nil {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for _, m := range idx {
		end := m[1]
		num := body[m[2]:m[3]]
		b.WriteString(body[last:end])
		last = end

		if end < len(body) && body[end] == '(' {
			continue
		}
		if url, ok := mapping[num]; ok {
			b.WriteString("(" + url + ")")
		}
	}
	b.WriteString(body[last:])
	return b.String()
}

// RewriteText parses mappingText and rewrites body with it.
func RewriteText(body, mappingText string) string {
	return Rewrite(body, Parse(mappingText))
}

// Markers returns the distinct marker numbers used in text, ascending.
func Markers(text string) []int {
	seen := make(map[int]struct{})
	for _, m := range marker.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Mapping builds "[n]: URL" lines for the markers that appear in text, where
// marker n refers to sources[n-1]. When the text has no resolvable markers
// every source is listed.
func Mapping(text string, sources []string) string {
	var lines []string
	for _, n := range Markers(text) {
		if n >= 1 && n <= len(sources) {
			lines = append(lines, fmt.Sprintf("[%d]: %s", n, sources[n-1]))
		}
	}
	if len(lines) == 0 {
		for i, src := range sources {
			lines = append(lines, fmt.Sprintf("[%d]: %s", i+1, src))
		}
	}
	return strings.Join(lines, "\n")
}
