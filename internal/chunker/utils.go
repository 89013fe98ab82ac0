package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultBoilerplate are the line patterns dropped from every page.
var DefaultBoilerplate = []string{
	`^\s*Catatan:\s*Peningkatan pendapatan.*`,
	`^\s*000\s*$`,
	`^\s*\d+\s*$`,
	`^\s*\.\s*$`,
}

var decimalGap = regexp.MustCompile(`(\d+)\.\s+(\d+)`)

// Normalizer cleans raw extracted page text.
type Normalizer struct {
	patterns []*regexp.Regexp
}

// NewNormalizer compiles the default boilerplate patterns plus extra ones.
func NewNormalizer(extra ...string) (*Normalizer, error) {
	n := &Normalizer{}
	for _, p := range append(append([]string{}, DefaultBoilerplate...), extra...) {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile boilerplate pattern %q: %w", p, err)
		}
		n.patterns = append(n.patterns, re)
	}
	return n, nil
}

// Normalize drops boilerplate lines, collapses whitespace and rejoins
// decimals split by whitespace ("12. 5" -> "12.5"). The result is a single
// line and Normalize(Normalize(s)) == Normalize(s).
func (n *Normalizer) Normalize(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !n.boilerplate(line) {
			kept = append(kept, line)
		}
	}

	text := CollapseWhitespace(strings.Join(kept, " "))
	for decimalGap.MatchString(text) {
		text = decimalGap.ReplaceAllString(text, "$1.$2")
	}

	// joining lines can produce a line that is itself boilerplate
	if n.boilerplate(text) {
		return ""
	}
	return text
}

func (n *Normalizer) boilerplate(line string) bool {
	for _, re := range n.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// CollapseWhitespace replaces every run of Unicode whitespace with one space
// and trims both ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
