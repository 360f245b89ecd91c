package providers

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/manifest"
)

const modrinthAPI = "https://api.modrinth.com/v2"

// modrinthVersion is the subset of the Labrinth version object we use.
type modrinthVersion struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	VersionNumber string         `json:"version_number"`
	VersionType   string         `json:"version_type"`
	Files         []modrinthFile `json:"files"`
}

type modrinthFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Primary  bool   `json:"primary"`
}

// ModrinthProvider downloads project versions from Modrinth.
type ModrinthProvider struct{}

func (p *ModrinthProvider) listVersions(ctx context.Context, env *Env, a *manifest.ModrinthAsset) ([]modrinthVersion, error) {
	u := fmt.Sprintf("%s/project/%s/version", modrinthAPI, url.PathEscape(a.ProjectID))
	if !a.IgnoreGameVersion {
		u += "?game_versions=" + url.QueryEscape(fmt.Sprintf("[%q]", env.GameVersion))
	}
	var versions []modrinthVersion
	if err := env.Fetch.GetJSON(ctx, u, &versions); err != nil {
		return nil, faults.NewUpstream(err, "listing modrinth versions for %s", a.ProjectID)
	}
	return versions, nil
}

// resolve picks the version matching the asset's selector. The API
// returns versions newest first.
func (p *ModrinthProvider) resolve(ctx context.Context, env *Env, a *manifest.ModrinthAsset) (*modrinthVersion, error) {
	versions, err := p.listVersions(ctx, env, a)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		v := &versions[i]
		if a.Channel != "" && v.VersionType != a.Channel {
			continue
		}
		if a.VersionNamePattern != nil && !a.VersionNamePattern.Search(v.Name) {
			continue
		}
		if a.IsLatest() {
			return v, nil
		}
		if a.VersionIsID && v.ID == a.Version {
			return v, nil
		}
		if !a.VersionIsID && v.VersionNumber == a.Version {
			return v, nil
		}
	}
	return nil, faults.NewNotFound("no modrinth version of %s matches %q for game version %s", a.ProjectID, a.Version, env.GameVersion)
}

func (p *ModrinthProvider) Download(ctx context.Context, env *Env, asset manifest.Asset, g Group) (*Download, error) {
	a, ok := asset.(*manifest.ModrinthAsset)
	if !ok {
		return nil, wrongAssetType(manifest.TypeModrinth, asset)
	}
	version, err := p.resolve(ctx, env, a)
	if err != nil {
		return nil, err
	}
	if len(version.Files) == 0 {
		return nil, faults.NewNotFound("modrinth version %s of %s has no files", version.VersionNumber, a.ProjectID)
	}

	names := make([]string, len(version.Files))
	for i, f := range version.Files {
		names[i] = f.Filename
	}
	wanted, err := selectFiles(a, names)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(wanted))
	for _, n := range wanted {
		keep[n] = true
	}

	folder, err := g.Folder(a)
	if err != nil {
		return nil, err
	}
	dl := &Download{
		Record: cache.Record{
			Type:          manifest.TypeModrinth,
			VersionID:     version.ID,
			VersionNumber: version.VersionNumber,
		},
	}
	for _, f := range version.Files {
		if !keep[f.Filename] {
			continue
		}
		dest := filepath.Join(folder, f.Filename)
		if err := env.Fetch.Download(ctx, f.URL, dest); err != nil {
			return nil, faults.NewUpstream(err, "downloading %s", f.Filename)
		}
		dl.Files = append(dl.Files, dest)
		if f.Primary {
			dl.SetPrimary(dest)
		}
	}
	return dl, nil
}

func (p *ModrinthProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares the cached version id against the freshly
// resolved one. Modrinth version ids carry no ordering, so a changed
// id is always reported as outdated.
func (p *ModrinthProvider) HasUpdate(ctx context.Context, env *Env, asset manifest.Asset, cached *cache.Record) (UpdateStatus, error) {
	a, ok := asset.(*manifest.ModrinthAsset)
	if !ok {
		return UpToDate, wrongAssetType(manifest.TypeModrinth, asset)
	}
	version, err := p.resolve(ctx, env, a)
	if err != nil {
		return UpToDate, err
	}
	if version.ID == cached.VersionID {
		return UpToDate, nil
	}
	return Outdated, nil
}
