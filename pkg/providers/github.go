package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
)

const githubAPI = "https://api.github.com"

type githubRelease struct {
	TagName string               `json:"tag_name"`
	Assets  []githubReleaseAsset `json:"assets"`
}

type githubReleaseAsset struct {
	Name string `json:"name"`

	// URL is the API asset endpoint. Downloading through it instead of
	// browser_download_url lets the bearer token reach private release
	// assets; it serves the binary under Accept: application/octet-stream.
	URL string `json:"url"`
}

// GithubReleaseProvider downloads assets attached to a GitHub release.
type GithubReleaseProvider struct{}

func (p *GithubReleaseProvider) getRelease(ctx context.Context, env *Env, a *manifest.GithubReleaseAsset) (*githubRelease, error) {
	u := fmt.Sprintf("%s/repos/%s/releases/latest", githubAPI, a.Repository)
	if !a.IsLatest() {
		u = fmt.Sprintf("%s/repos/%s/releases/tags/%s", githubAPI, a.Repository, url.PathEscape(a.Version))
	}
	var rel githubRelease
	if err := env.Fetch.GetJSON(ctx, u, &rel); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewNotFound("no release %q in %s", a.Version, a.Repository)
		}
		return nil, faults.NewUpstream(err, "fetching release %q of %s", a.Version, a.Repository)
	}
	return &rel, nil
}

func (p *GithubReleaseProvider) Download(ctx context.Context, env *Env, asset manifest.Asset, g Group) (*Download, error) {
	a, ok := asset.(*manifest.GithubReleaseAsset)
	if !ok {
		return nil, wrongAssetType(manifest.TypeGithub, asset)
	}
	rel, err := p.getRelease(ctx, env, a)
	if err != nil {
		return nil, err
	}
	if len(rel.Assets) == 0 {
		return nil, faults.NewNotFound("release %s of %s has no assets", rel.TagName, a.Repository)
	}

	names := make([]string, len(rel.Assets))
	for i, ra := range rel.Assets {
		names[i] = ra.Name
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
			Type: manifest.TypeGithub,
			Tag:  rel.TagName,
		},
	}
	for _, ra := range rel.Assets {
		if !keep[ra.Name] {
			continue
		}
		dest := filepath.Join(folder, ra.Name)
		if err := env.Fetch.DownloadAccept(ctx, ra.URL, dest, "application/octet-stream"); err != nil {
			return nil, faults.NewUpstream(err, "downloading %s", ra.Name)
		}
		dl.Files = append(dl.Files, dest)
	}
	return dl, nil
}

func (p *GithubReleaseProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares the cached release tag against the current latest
// release. Tags carry no ordering, so a changed tag is always reported
// as outdated.
func (p *GithubReleaseProvider) HasUpdate(ctx context.Context, env *Env, asset manifest.Asset, cached *cache.Record) (UpdateStatus, error) {
	a, ok := asset.(*manifest.GithubReleaseAsset)
	if !ok {
		return UpToDate, wrongAssetType(manifest.TypeGithub, asset)
	}
	rel, err := p.getRelease(ctx, env, a)
	if err != nil {
		return UpToDate, err
	}
	if rel.TagName == cached.Tag {
		return UpToDate, nil
	}
	return Outdated, nil
}
