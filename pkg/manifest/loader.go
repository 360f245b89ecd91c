package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/registry"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

// AssetDecoder decodes one manifest list entry into a concrete asset.
// The node is the full mapping including the type discriminator.
type AssetDecoder func(node *yaml.Node) (Asset, error)

// CoreDecoder decodes the core mapping into a concrete core.
type CoreDecoder func(node *yaml.Node) (Core, error)

// Schema holds the decoder registries and the struct validator used to
// turn a manifest file into typed assets. It is constructed once in the
// command entrypoint and threaded explicitly.
type Schema struct {
	assets   *registry.Registry[AssetDecoder]
	cores    *registry.Registry[CoreDecoder]
	validate *validator.Validate
	log      *telemetry.Logger
}

// NewSchema returns a schema with every built-in asset and core type
// registered.
func NewSchema(log *telemetry.Logger) *Schema {
	s := &Schema{
		assets:   registry.New[AssetDecoder]("asset"),
		cores:    registry.New[CoreDecoder]("core"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.NewComponentLogger("manifest"),
	}

	s.RegisterAssetType(TypeModrinth, func(node *yaml.Node) (Asset, error) {
		a := &ModrinthAsset{AssetCommon: defaultCommon("all")}
		return a, node.Decode(a)
	})
	s.RegisterAssetType(TypeGithub, func(node *yaml.Node) (Asset, error) {
		a := &GithubReleaseAsset{AssetCommon: defaultCommon("simple-jar")}
		return a, node.Decode(a)
	})
	s.RegisterAssetType(TypeGithubActions, func(node *yaml.Node) (Asset, error) {
		a := &GithubActionsAsset{
			AssetCommon: defaultCommon("simple-jar"),
			Version:     BuildSelector{Latest: true},
			Branch:      "master",
		}
		return a, node.Decode(a)
	})
	s.RegisterAssetType(TypeJenkins, func(node *yaml.Node) (Asset, error) {
		a := &JenkinsAsset{
			AssetCommon: defaultCommon("simple-jar"),
			Version:     BuildSelector{Latest: true},
		}
		return a, node.Decode(a)
	})
	s.RegisterAssetType(TypeURL, func(node *yaml.Node) (Asset, error) {
		a := &DirectURLAsset{AssetCommon: defaultCommon("all")}
		return a, node.Decode(a)
	})
	s.RegisterAssetType(TypeNote, func(node *yaml.Node) (Asset, error) {
		a := &NoteAsset{AssetCommon: defaultCommon("all")}
		return a, node.Decode(a)
	})

	s.RegisterCoreType(TypePaper, func(node *yaml.Node) (Core, error) {
		c := &PaperCore{Build: PaperBuildSelector{Latest: true}}
		return c, node.Decode(c)
	})
	s.RegisterCoreType(TypePurpur, func(node *yaml.Node) (Core, error) {
		c := &PurpurCore{Build: BuildSelector{Latest: true}}
		return c, node.Decode(c)
	})
	s.RegisterCoreType(TypeBungeecord, func(node *yaml.Node) (Core, error) {
		c := &BungeecordCore{Build: BuildSelector{Latest: true}}
		return c, node.Decode(c)
	})

	return s
}

// RegisterAssetType adds a decoder under the given type discriminator.
func (s *Schema) RegisterAssetType(typ string, dec AssetDecoder) {
	s.assets.Register(typ, dec)
}

// RegisterCoreType adds a core decoder under the given type
// discriminator.
func (s *Schema) RegisterCoreType(typ string, dec CoreDecoder) {
	s.cores.Register(typ, dec)
}

// Manifest is a fully decoded manifest file.
type Manifest struct {
	// Version is the manifest format version.
	Version int

	// GameVersion is the game version every asset is resolved against.
	GameVersion string

	// Core is the server engine declaration, nil when absent.
	Core Core

	// Asset groups in install order.
	Mods      []Asset
	Plugins   []Asset
	Datapacks []Asset
	Customs   []Asset
}

// Groups returns the asset groups with their manifest names, in install
// order.
func (m *Manifest) Groups() []struct {
	Name   string
	Assets []Asset
} {
	return []struct {
		Name   string
		Assets []Asset
	}{
		{"mods", m.Mods},
		{"plugins", m.Plugins},
		{"datapacks", m.Datapacks},
		{"customs", m.Customs},
	}
}

// Lookup returns the asset with the given resolved id, or nil.
func (m *Manifest) Lookup(id string) Asset {
	for _, g := range m.Groups() {
		for _, a := range g.Assets {
			if ResolveID(a) == id {
				return a
			}
		}
	}
	return nil
}

// AssetIDs returns the set of resolved asset ids across all groups.
func (m *Manifest) AssetIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, g := range m.Groups() {
		for _, a := range g.Assets {
			ids[ResolveID(a)] = struct{}{}
		}
	}
	return ids
}

// rawManifest defers asset and core decoding so the type discriminator
// can be read first.
type rawManifest struct {
	Version     int         `yaml:"version"`
	GameVersion string      `yaml:"mc_version"`
	Core        yaml.Node   `yaml:"core"`
	Mods        []yaml.Node `yaml:"mods"`
	Plugins     []yaml.Node `yaml:"plugins"`
	Datapacks   []yaml.Node `yaml:"datapacks"`
	Customs     []yaml.Node `yaml:"customs"`
}

// manifestExtensions are the file extensions Discover probes, in order.
var manifestExtensions = []string{".yaml", ".yml", ".json"}

// Discover returns the manifest file next to dir, probing the default
// base name with each supported extension.
func Discover(dir string) (string, error) {
	for _, ext := range manifestExtensions {
		p := filepath.Join(dir, "manifest"+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", faults.NewConfig("no manifest.yaml, manifest.yml or manifest.json found in %s", dir)
}

// Load reads, decodes and validates a manifest file. YAML and JSON are
// both accepted; JSON is parsed by the YAML decoder.
func (s *Schema) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.NewConfig("cannot read manifest %s: %v", path, err)
	}

	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, faults.NewConfig("cannot parse manifest %s: %v", path, err)
	}
	if raw.GameVersion == "" {
		return nil, faults.NewConfig("manifest %s is missing mc_version", path)
	}

	m := &Manifest{
		Version:     raw.Version,
		GameVersion: raw.GameVersion,
	}

	if !raw.Core.IsZero() {
		core, err := s.decodeCore(&raw.Core)
		if err != nil {
			return nil, err
		}
		m.Core = core
	}

	groups := []struct {
		name  string
		nodes []yaml.Node
		dst   *[]Asset
	}{
		{"mods", raw.Mods, &m.Mods},
		{"plugins", raw.Plugins, &m.Plugins},
		{"datapacks", raw.Datapacks, &m.Datapacks},
		{"customs", raw.Customs, &m.Customs},
	}
	for _, g := range groups {
		for i := range g.nodes {
			a, err := s.decodeAsset(&g.nodes[i])
			if err != nil {
				return nil, faults.NewConfig("manifest %s: %s[%d]: %v", path, g.name, i, err)
			}
			*g.dst = append(*g.dst, a)
		}
	}

	s.warnDuplicateIDs(m)
	return m, nil
}

func (s *Schema) decodeAsset(node *yaml.Node) (Asset, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, err
	}
	if head.Type == "" {
		return nil, fmt.Errorf("missing type discriminator")
	}
	dec, err := s.assets.Require(head.Type)
	if err != nil {
		return nil, err
	}
	a, err := dec(node)
	if err != nil {
		return nil, fmt.Errorf("decoding %s asset: %w", head.Type, err)
	}
	if err := s.validate.Struct(a); err != nil {
		return nil, fmt.Errorf("invalid %s asset: %w", head.Type, err)
	}
	return a, nil
}

func (s *Schema) decodeCore(node *yaml.Node) (Core, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, faults.NewConfig("manifest core: %v", err)
	}
	if head.Type == "" {
		return nil, faults.NewConfig("manifest core is missing its type discriminator")
	}
	dec, err := s.cores.Require(head.Type)
	if err != nil {
		return nil, faults.NewConfig("%v", err)
	}
	c, err := dec(node)
	if err != nil {
		return nil, faults.NewConfig("decoding %s core: %v", head.Type, err)
	}
	if err := s.validate.Struct(c); err != nil {
		return nil, faults.NewConfig("invalid %s core: %v", head.Type, err)
	}
	return c, nil
}

// warnDuplicateIDs logs a warning for every asset id declared more than
// once. Later declarations shadow earlier ones in the cache, which is
// almost never intended.
func (s *Schema) warnDuplicateIDs(m *Manifest) {
	seen := make(map[string]string)
	for _, g := range m.Groups() {
		for _, a := range g.Assets {
			id := ResolveID(a)
			if prev, ok := seen[id]; ok {
				s.log.Warnf("duplicate asset id %q in %s (first seen in %s); set asset_id to disambiguate", id, g.Name, prev)
				continue
			}
			seen[id] = g.Name
		}
	}
}

// normalizeExt reports whether the path has a supported manifest
// extension.
func normalizeExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range manifestExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CheckPath validates that path points at a loadable manifest file.
func CheckPath(path string) error {
	if !normalizeExt(path) {
		return faults.NewConfig("unsupported manifest extension on %s (want .yaml, .yml or .json)", path)
	}
	if _, err := os.Stat(path); err != nil {
		return faults.NewConfig("manifest %s not readable: %v", path, err)
	}
	return nil
}
