package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSelector is a predicate over candidate filenames used to pick the
// relevant files out of a multi-file download.
type FileSelector interface {
	// SelectorType returns the selector discriminator.
	SelectorType() string

	// FindTargets returns the filenames that pass the selector.
	FindTargets(names []string) []string
}

// AllFilesSelector keeps every candidate file.
type AllFilesSelector struct{}

func (AllFilesSelector) SelectorType() string { return "all" }

func (AllFilesSelector) FindTargets(names []string) []string { return names }

// SimpleJarSelector keeps .jar files excluding sources and api
// classifiers.
type SimpleJarSelector struct{}

func (SimpleJarSelector) SelectorType() string { return "simple-jar" }

func (SimpleJarSelector) FindTargets(names []string) []string {
	var out []string
	for _, n := range names {
		if strings.HasSuffix(n, ".jar") &&
			!strings.HasSuffix(n, "-sources.jar") &&
			!strings.HasSuffix(n, "-api.jar") {
			out = append(out, n)
		}
	}
	return out
}

// PatternSelector filters files with a regular expression.
type PatternSelector struct {
	// Pattern is the regular expression to match candidate names with.
	Pattern *Pattern `yaml:"pattern" json:"pattern" validate:"required"`

	// Mode selects matching behavior: "search" matches anywhere in the
	// name, "full" requires the whole name to match.
	Mode string `yaml:"mode" json:"mode,omitempty" validate:"omitempty,oneof=search full"`
}

func (*PatternSelector) SelectorType() string { return "pattern" }

func (s *PatternSelector) FindTargets(names []string) []string {
	match := s.Pattern.Search
	if s.Mode == "full" {
		match = s.Pattern.FullMatch
	}
	var out []string
	for _, n := range names {
		if match(n) {
			out = append(out, n)
		}
	}
	return out
}

// SelectorSpec is either a named selector preset or an inline selector
// definition. Named presets are resolved through the selector registry
// when the asset is first downloaded.
type SelectorSpec struct {
	// Name is the preset key when the manifest used the short form.
	Name string

	// Inline is the decoded selector when the manifest used the long
	// form.
	Inline FileSelector
}

// UnmarshalYAML accepts either a scalar preset name or a mapping with a
// type discriminator.
func (s *SelectorSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&s.Name)
	}
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	switch head.Type {
	case "all":
		s.Inline = AllFilesSelector{}
	case "simple-jar":
		s.Inline = SimpleJarSelector{}
	case "pattern":
		var sel PatternSelector
		if err := node.Decode(&sel); err != nil {
			return err
		}
		if sel.Mode == "" {
			sel.Mode = "search"
		}
		s.Inline = &sel
	default:
		return fmt.Errorf("unknown file selector type %q", head.Type)
	}
	return nil
}

// MarshalJSON participates in the stable hash: a preset serializes as
// its name, an inline selector as its full definition.
func (s SelectorSpec) MarshalJSON() ([]byte, error) {
	if s.Inline == nil {
		return []byte(fmt.Sprintf("%q", s.Name)), nil
	}
	type wrapper struct {
		Type string      `json:"type"`
		Def  interface{} `json:"def"`
	}
	return json.Marshal(wrapper{Type: s.Inline.SelectorType(), Def: s.Inline})
}

// IsInline reports whether the selector carries an inline definition.
func (s SelectorSpec) IsInline() bool { return s.Inline != nil }

// Resolve returns the concrete selector. Named presets resolve here so
// that an unknown name surfaces when the asset is processed, not at
// parse time.
func (s SelectorSpec) Resolve() (FileSelector, error) {
	if s.Inline != nil {
		return s.Inline, nil
	}
	switch s.Name {
	case "", "all":
		return AllFilesSelector{}, nil
	case "simple-jar":
		return SimpleJarSelector{}, nil
	}
	return nil, fmt.Errorf("unknown file selector %q", s.Name)
}
