// Package cache persists what has already been installed: a JSON
// document mapping asset ids to the hash of the definition that
// produced them and the files they left on disk. Entries are checked
// against the live manifest before every install and invalidated with
// a typed reason when stale.
package cache

import (
	"os"
	"path/filepath"
)

// DocumentVersion is the persisted format version.
const DocumentVersion = 1

// Record is the provider-tagged descriptor of one completed download.
// Files are relative to the install root unless the asset targeted a
// folder outside it. The metadata fields identify the concrete remote
// artifact so the update lifecycle can compare against upstream; each
// provider fills only its own.
type Record struct {
	Type  string   `json:"type"`
	Files []string `json:"files"`

	// github release tag.
	Tag string `json:"tag,omitempty"`

	// github-actions workflow run.
	RunID     int64 `json:"run_id,omitempty"`
	RunNumber int64 `json:"run_number,omitempty"`

	// modrinth version.
	VersionID     string `json:"version_id,omitempty"`
	VersionNumber string `json:"version_number,omitempty"`

	// jenkins, paper and purpur build number.
	BuildNumber int64 `json:"build_number,omitempty"`
}

// MissingFiles returns the record's files that no longer exist on disk.
// Relative paths are resolved against root.
func (r *Record) MissingFiles(root string) []string {
	var missing []string
	for _, f := range r.Files {
		p := f
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// AssetEntry is one persisted asset install.
type AssetEntry struct {
	// AssetID repeats the map key for self-describing records.
	AssetID string `json:"asset_id"`

	// AssetHash is the stable hash of the definition that produced this
	// entry.
	AssetHash string `json:"asset_hash"`

	// UpdateTime is the install time in epoch milliseconds.
	UpdateTime int64 `json:"update_time"`

	// Data is the provider record.
	Data Record `json:"data"`
}

// CoreEntry is the singular persisted core install. Data.Type carries
// the core type discriminator.
type CoreEntry struct {
	// UpdateTime is the install time in epoch milliseconds.
	UpdateTime int64 `json:"update_time"`

	// VersionHash detects pinned-build changes; empty for floating
	// selectors.
	VersionHash string `json:"version_hash,omitempty"`

	// Data is the provider record.
	Data Record `json:"data"`
}

// Document is the root persisted state.
type Document struct {
	Version      int                    `json:"version"`
	Profile      string                 `json:"profile,omitempty"`
	GameVersion  string                 `json:"mc_version"`
	ServerFolder string                 `json:"server_folder"`
	Assets       map[string]*AssetEntry `json:"assets"`
	Core         *CoreEntry             `json:"core"`
}

func newDocument(profile, gameVersion, serverFolder string) *Document {
	return &Document{
		Version:      DocumentVersion,
		Profile:      profile,
		GameVersion:  gameVersion,
		ServerFolder: serverFolder,
		Assets:       make(map[string]*AssetEntry),
	}
}

// Validity is the typed result of an entry check. Anything but Valid
// causes the entry to be discarded with its specific reason logged.
type Validity int

const (
	Valid Validity = iota

	// Removed: the asset is no longer declared in the manifest.
	Removed

	// HashMismatch: the asset's definition changed since install.
	HashMismatch

	// MissingFiles: files recorded by the entry were deleted from disk.
	MissingFiles
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Removed:
		return "removed"
	case HashMismatch:
		return "hash mismatch"
	case MissingFiles:
		return "missing files"
	default:
		return "unknown"
	}
}
