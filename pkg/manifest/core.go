package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Core type discriminators.
const (
	TypePaper      = "paper"
	TypePurpur     = "purpur"
	TypeBungeecord = "bungeecord"
)

// Core describes the server software itself. Unlike assets a core has
// no id: the cache holds at most one core entry.
type Core interface {
	// Type returns the registry key of the core provider.
	Type() string

	// DisplayName is the human-facing server name.
	DisplayName() string

	// IsLatest reports whether the build selector floats.
	IsLatest() bool

	// VersionHash returns a digest of the pinned game version and
	// build, or "" when the selector floats. A changed hash forces a
	// reinstall of the core.
	VersionHash(gameVersion string) string

	// FileName is the name the server jar is stored under.
	FileName() string
}

func pinnedVersionHash(gameVersion string, build int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", gameVersion, build)))
	return hex.EncodeToString(sum[:])
}

// PaperBuildSelector selects a Paper build: the latest build, the
// latest stable-channel build, or a pinned build number.
type PaperBuildSelector struct {
	Latest       bool
	LatestStable bool
	Number       int64
}

func (s PaperBuildSelector) String() string {
	switch {
	case s.Latest:
		return "latest"
	case s.LatestStable:
		return "latest_stable"
	default:
		return fmt.Sprintf("%d", s.Number)
	}
}

func (s *PaperBuildSelector) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		switch v {
		case "latest":
			*s = PaperBuildSelector{Latest: true}
		case "latest_stable":
			*s = PaperBuildSelector{LatestStable: true}
		default:
			return fmt.Errorf("invalid build selector %q: want \"latest\", \"latest_stable\" or a build number", v)
		}
	case int:
		*s = PaperBuildSelector{Number: int64(v)}
	case int64:
		*s = PaperBuildSelector{Number: v}
	default:
		return fmt.Errorf("invalid build selector type %T", raw)
	}
	return nil
}

func (s PaperBuildSelector) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// PaperCore installs a PaperMC server jar.
type PaperCore struct {
	// Build selects the build to install.
	Build PaperBuildSelector `yaml:"build" json:"build"`

	// Channels restricts latest-build resolution to the named release
	// channels. Empty means all channels.
	Channels []string `yaml:"channels" json:"channels,omitempty"`
}

func (*PaperCore) Type() string { return TypePaper }

func (*PaperCore) DisplayName() string { return "Paper" }

func (c *PaperCore) IsLatest() bool { return c.Build.Latest || c.Build.LatestStable }

func (c *PaperCore) VersionHash(gameVersion string) string {
	if c.IsLatest() {
		return ""
	}
	return pinnedVersionHash(gameVersion, c.Build.Number)
}

func (*PaperCore) FileName() string { return "paper.jar" }

// PurpurCore installs a Purpur server jar.
type PurpurCore struct {
	// Build selects the build to install.
	Build BuildSelector `yaml:"build" json:"build"`

	// AllowExperimental permits floating resolution to land on builds
	// flagged experimental upstream.
	AllowExperimental bool `yaml:"allow_experimental" json:"allow_experimental,omitempty"`
}

func (*PurpurCore) Type() string { return TypePurpur }

func (*PurpurCore) DisplayName() string { return "Purpur" }

func (c *PurpurCore) IsLatest() bool { return c.Build.Latest }

func (c *PurpurCore) VersionHash(gameVersion string) string {
	if c.Build.Latest {
		return ""
	}
	return pinnedVersionHash(gameVersion, c.Build.Number)
}

func (*PurpurCore) FileName() string { return "purpur.jar" }

// BungeecordCore installs a BungeeCord proxy jar from the SpigotMC
// Jenkins instance.
type BungeecordCore struct {
	// Build selects the build to install.
	Build BuildSelector `yaml:"build" json:"build"`
}

func (*BungeecordCore) Type() string { return TypeBungeecord }

func (c *BungeecordCore) DisplayName() string {
	return fmt.Sprintf("BungeeCord#%s", c.Build)
}

func (c *BungeecordCore) IsLatest() bool { return c.Build.Latest }

func (c *BungeecordCore) VersionHash(gameVersion string) string {
	if c.Build.Latest {
		return ""
	}
	return pinnedVersionHash(gameVersion, c.Build.Number)
}

func (*BungeecordCore) FileName() string { return "BungeeCord.jar" }
