package manifest

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern is a regular expression field that serializes as its source
// text, so it participates in the stable hash by content.
type Pattern struct {
	re  *regexp.Regexp
	src string
}

// MustPattern compiles a pattern or panics; intended for tests.
func MustPattern(src string) *Pattern {
	return &Pattern{re: regexp.MustCompile(src), src: src}
}

// Search reports whether the pattern matches anywhere in s.
func (p *Pattern) Search(s string) bool {
	return p.re.MatchString(s)
}

// FullMatch reports whether the pattern matches the whole of s.
func (p *Pattern) FullMatch(s string) bool {
	loc := p.re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// String returns the pattern source.
func (p *Pattern) String() string {
	return p.src
}

// UnmarshalYAML decodes and compiles the pattern from a scalar.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	var src string
	if err := node.Decode(&src); err != nil {
		return err
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", src, err)
	}
	p.re = re
	p.src = src
	return nil
}

// MarshalJSON emits the pattern source string.
func (p *Pattern) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", p.src)), nil
}
