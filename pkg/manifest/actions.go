package manifest

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Action is a post-download file transformation declared on an asset.
type Action interface {
	// ActionType returns the handler discriminator.
	ActionType() string

	// ActionCommon returns the fields shared by every action kind.
	ActionCommon() *ActionBase
}

// ActionBase holds the fields shared by every action kind.
type ActionBase struct {
	// Name is an optional label used in log output.
	Name string `yaml:"name" json:"name,omitempty"`

	// If gates the action; when it evaluates false the action is
	// skipped.
	If string `yaml:"if" json:"if,omitempty"`
}

// TemplateString is a string that may contain ${{ ... }} expressions.
type TemplateString string

// String returns the raw template text.
func (t TemplateString) String() string { return string(t) }

// RenameAction renames the primary downloaded file.
type RenameAction struct {
	ActionBase `yaml:",inline"`

	// To is the template producing the new file name.
	To TemplateString `yaml:"to" json:"to" validate:"required"`
}

func (*RenameAction) ActionType() string { return "rename" }

func (a *RenameAction) ActionCommon() *ActionBase { return &a.ActionBase }

// UnzipAction extracts the primary file, which must be a zip archive.
type UnzipAction struct {
	ActionBase `yaml:",inline"`

	// Folder is the template producing the target folder. When empty
	// the primary file's own parent directory is used.
	Folder TemplateString `yaml:"folder" json:"folder,omitempty"`
}

func (*UnzipAction) ActionType() string { return "unzip" }

func (a *UnzipAction) ActionCommon() *ActionBase { return &a.ActionBase }

// DummyAction evaluates an expression and logs its result. Diagnostics
// only.
type DummyAction struct {
	ActionBase `yaml:",inline"`

	// Expr is the expression to evaluate.
	Expr string `yaml:"expr" json:"expr" validate:"required"`
}

func (*DummyAction) ActionType() string { return "dummy" }

func (a *DummyAction) ActionCommon() *ActionBase { return &a.ActionBase }

// ActionSpec wraps the closed Action union for YAML decoding and
// canonical serialization.
type ActionSpec struct {
	Action Action
}

// UnmarshalYAML decodes the action by its type discriminator.
func (s *ActionSpec) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	switch head.Type {
	case "rename":
		var a RenameAction
		if err := node.Decode(&a); err != nil {
			return err
		}
		s.Action = &a
	case "unzip":
		var a UnzipAction
		if err := node.Decode(&a); err != nil {
			return err
		}
		s.Action = &a
	case "dummy":
		var a DummyAction
		if err := node.Decode(&a); err != nil {
			return err
		}
		s.Action = &a
	default:
		return fmt.Errorf("unknown action type %q", head.Type)
	}
	return nil
}

// MarshalJSON participates in the stable hash.
func (s ActionSpec) MarshalJSON() ([]byte, error) {
	type wrapper struct {
		Type string      `json:"type"`
		Def  interface{} `json:"def"`
	}
	return json.Marshal(wrapper{Type: s.Action.ActionType(), Def: s.Action})
}
