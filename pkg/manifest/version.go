package manifest

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// BuildSelector selects either the latest build or a pinned build
// number. It decodes from the scalar "latest" or an integer.
type BuildSelector struct {
	Latest bool
	Number int64
}

// String renders the selector for display.
func (b BuildSelector) String() string {
	if b.Latest {
		return "latest"
	}
	return fmt.Sprintf("%d", b.Number)
}

// UnmarshalYAML decodes "latest" or a build number.
func (b *BuildSelector) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil && s == "latest" {
		*b = BuildSelector{Latest: true}
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("build selector must be \"latest\" or a build number")
	}
	*b = BuildSelector{Number: n}
	return nil
}

// MarshalJSON participates in the stable hash.
func (b BuildSelector) MarshalJSON() ([]byte, error) {
	if b.Latest {
		return json.Marshal("latest")
	}
	return json.Marshal(b.Number)
}
