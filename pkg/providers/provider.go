// Package providers implements the pluggable download backends. Each
// provider resolves a version selector against one upstream source,
// fetches the artifact(s) and reports the metadata persisted in the
// cache. Providers register under their type discriminator; the
// orchestrator only ever sees the interfaces here.
package providers

import (
	"context"
	"fmt"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/registry"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

// Env carries the per-run collaborators every provider needs. It is
// constructed once in the command entrypoint and threaded explicitly.
type Env struct {
	// GameVersion is the manifest's game version.
	GameVersion string

	// Profile is the active install profile name.
	Profile string

	// ServerRoot is the absolute install root.
	ServerRoot string

	// Fetch performs all network IO.
	Fetch *fetch.Fetcher

	// Log is the run logger; providers derive component loggers.
	Log *telemetry.Logger

	// Debug enables verbose diagnostics.
	Debug bool
}

// Group is the installer-side view of an asset group: a named target
// folder a provider writes into.
type Group interface {
	// Name is the manifest group name ("mods", "plugins", ...).
	Name() string

	// Folder returns the absolute target folder for the given asset,
	// creating it if missing.
	Folder(a manifest.Asset) (string, error)
}

// UpdateStatus is the result of an upstream comparison.
type UpdateStatus int

const (
	// UpToDate: the cached artifact matches upstream.
	UpToDate UpdateStatus = iota

	// Outdated: upstream has a newer artifact.
	Outdated

	// Ahead: the cached reference is newer than what upstream reports,
	// e.g. after a rewound branch. Informational, not an error.
	Ahead
)

func (s UpdateStatus) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case Outdated:
		return "outdated"
	case Ahead:
		return "ahead"
	default:
		return "unknown"
	}
}

// Download is the result of one provider download: the files written
// to disk plus the cache record metadata identifying the remote
// artifact. Record.Files is filled by the installer after path
// normalization.
type Download struct {
	// Files holds the paths written, absolute as produced by the
	// provider.
	Files []string

	// Record carries the provider metadata for the cache.
	Record cache.Record

	primary string
}

// Primary returns the primary file: the explicitly set one, else the
// first. An empty download has no primary.
func (d *Download) Primary() (string, error) {
	if d.primary != "" {
		return d.primary, nil
	}
	if len(d.Files) == 0 {
		return "", fmt.Errorf("download produced no files")
	}
	return d.Files[0], nil
}

// SetPrimary replaces the current primary file with path, updating the
// file list entry in place.
func (d *Download) SetPrimary(path string) {
	old, err := d.Primary()
	if err != nil {
		d.Files = append(d.Files, path)
		d.primary = path
		return
	}
	for i, f := range d.Files {
		if f == old {
			d.Files[i] = path
			break
		}
	}
	d.primary = path
}

// Provider downloads assets of one type discriminator.
type Provider interface {
	// Download resolves the asset's version selector, fetches the
	// artifact(s) into the group's folder and returns the result.
	Download(ctx context.Context, env *Env, a manifest.Asset, g Group) (*Download, error)

	// SupportsUpdateChecking reports whether HasUpdate is implemented.
	SupportsUpdateChecking() bool

	// HasUpdate compares the cached record against upstream. Only
	// called when SupportsUpdateChecking returns true.
	HasUpdate(ctx context.Context, env *Env, a manifest.Asset, cached *cache.Record) (UpdateStatus, error)
}

// CoreProvider downloads the server engine binary.
type CoreProvider interface {
	// Download fetches the core into the server root under the core's
	// file name.
	Download(ctx context.Context, env *Env, c manifest.Core) (*Download, error)

	// SupportsUpdateChecking reports whether HasUpdate is implemented.
	SupportsUpdateChecking() bool

	// HasUpdate compares the cached record against upstream.
	HasUpdate(ctx context.Context, env *Env, c manifest.Core, cached *cache.Record) (UpdateStatus, error)
}

// NoUpdateCheck is embedded by providers without update support.
type NoUpdateCheck struct{}

func (NoUpdateCheck) SupportsUpdateChecking() bool { return false }

func (NoUpdateCheck) HasUpdate(context.Context, *Env, manifest.Asset, *cache.Record) (UpdateStatus, error) {
	return UpToDate, fmt.Errorf("update checking not supported")
}

// Registries bundles the two provider registries.
type Registries struct {
	Assets *registry.Registry[Provider]
	Cores  *registry.Registry[CoreProvider]
}

// NewRegistries returns empty registries.
func NewRegistries() *Registries {
	return &Registries{
		Assets: registry.New[Provider]("provider"),
		Cores:  registry.New[CoreProvider]("core provider"),
	}
}

// RegisterAll populates the registries with every built-in provider.
func RegisterAll(r *Registries) {
	r.Assets.Register(manifest.TypeModrinth, &ModrinthProvider{})
	r.Assets.Register(manifest.TypeGithub, &GithubReleaseProvider{})
	r.Assets.Register(manifest.TypeGithubActions, &GithubActionsProvider{})
	r.Assets.Register(manifest.TypeJenkins, &JenkinsProvider{})
	r.Assets.Register(manifest.TypeURL, &DirectURLProvider{})

	r.Cores.Register(manifest.TypePaper, &PaperProvider{})
	r.Cores.Register(manifest.TypePurpur, &PurpurProvider{})
	r.Cores.Register(manifest.TypeBungeecord, &BungeecordProvider{})
}

// selectFiles applies the asset's file selector to the candidate names
// and errors when nothing survives.
func selectFiles(a manifest.Asset, names []string) ([]string, error) {
	sel, err := a.Common().FileSelector.Resolve()
	if err != nil {
		return nil, faults.NewConfig("%v", err).WithAsset(manifest.ResolveID(a))
	}
	matched := sel.FindTargets(names)
	if len(matched) == 0 {
		return nil, faults.NewNotFound("file selector %q matched none of %v", sel.SelectorType(), names)
	}
	return matched, nil
}

// wrongAssetType is the config fault for a registry/type mismatch.
func wrongAssetType(want string, a manifest.Asset) error {
	return faults.NewConfig("%s provider received a %s asset", want, a.Type())
}
