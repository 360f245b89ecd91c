// Package manifest defines the declarative data model for a server
// installation: the asset list, the singular core, file selectors,
// post-download actions and the stable content hash used as the
// cache-validity witness.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Asset is one installable unit declared in the manifest. Concrete
// types carry the source-specific fields; the type discriminator is
// what the provider registry is keyed by.
type Asset interface {
	// Type returns the provider discriminator ("modrinth", "github", ...).
	Type() string

	// Common returns the fields shared by every asset kind.
	Common() *AssetCommon

	// DeriveID returns the provider-derived asset id. It must not
	// perform any IO.
	DeriveID() string

	// IsLatest reports whether the version selector floats ("latest")
	// rather than pinning a concrete version.
	IsLatest() bool
}

// AssetCommon holds the fields shared by every asset kind.
type AssetCommon struct {
	// AssetID overrides the provider-derived id when set.
	AssetID string `yaml:"asset_id" json:"asset_id,omitempty"`

	// Caching controls whether a cache entry is kept for this asset.
	Caching bool `yaml:"caching" json:"caching"`

	// Actions are executed in order after download.
	Actions []ActionSpec `yaml:"actions" json:"actions,omitempty"`

	// If gates the whole asset; when it evaluates false the asset is
	// skipped silently.
	If string `yaml:"if" json:"if,omitempty"`

	// FileSelector chooses files when a source yields multiple.
	FileSelector SelectorSpec `yaml:"file_selector" json:"file_selector"`

	// Folder is the target folder override, used only in the customs
	// group.
	Folder string `yaml:"folder" json:"folder,omitempty"`

	resolvedID string
}

// defaultCommon returns an AssetCommon with defaults applied, ready for
// YAML decoding on top (absent fields keep the defaults).
func defaultCommon(selector string) AssetCommon {
	return AssetCommon{
		Caching:      true,
		FileSelector: SelectorSpec{Name: selector},
	}
}

// ResolveID returns the asset id: the manifest override if present,
// otherwise the provider-derived id. The result is memoized per asset
// instance.
func ResolveID(a Asset) string {
	c := a.Common()
	if c.resolvedID != "" {
		return c.resolvedID
	}
	id := c.AssetID
	if id == "" {
		id = a.DeriveID()
	}
	c.resolvedID = id
	return id
}

// StableHash returns the sha256 hex digest of the canonical
// serialization of the asset's entire definition including its type
// discriminator. Any field change produces a different hash.
func StableHash(a Asset) string {
	return hashDefinition(a.Type(), a)
}

// CoreStableHash returns the stable hash of a core manifest.
func CoreStableHash(c Core) string {
	return hashDefinition(c.Type(), c)
}

func hashDefinition(typ string, def interface{}) string {
	payload := struct {
		Type string      `json:"type"`
		Def  interface{} `json:"def"`
	}{Type: typ, Def: def}
	b, err := json.Marshal(payload)
	if err != nil {
		// The definition types are all plain data; a marshal failure is
		// a programming error.
		panic(fmt.Sprintf("manifest: cannot serialize %s definition: %v", typ, err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
