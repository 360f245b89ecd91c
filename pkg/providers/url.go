package providers

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
)

// DirectURLProvider downloads a single file from a fixed URL. There is
// nothing to compare against upstream, so update checking is not
// supported.
type DirectURLProvider struct {
	NoUpdateCheck
}

// fileName derives the target name: the manifest override, else the
// last path segment of the URL.
func (p *DirectURLProvider) fileName(a *manifest.DirectURLAsset) (string, error) {
	if a.FileName != "" {
		return a.FileName, nil
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return "", faults.NewConfig("invalid url %q: %v", a.URL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", faults.NewConfig("cannot derive a file name from %q; set file_name", a.URL)
	}
	return name, nil
}

func (p *DirectURLProvider) Download(ctx context.Context, env *Env, asset manifest.Asset, g Group) (*Download, error) {
	a, ok := asset.(*manifest.DirectURLAsset)
	if !ok {
		return nil, wrongAssetType(manifest.TypeURL, asset)
	}
	name, err := p.fileName(a)
	if err != nil {
		return nil, err
	}
	folder, err := g.Folder(a)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(folder, name)
	if err := env.Fetch.Download(ctx, a.URL, dest); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewFriendly("%s does not exist (HTTP 404); the file may have moved", a.URL)
		}
		return nil, faults.NewUpstream(err, "downloading %s", a.URL)
	}
	return &Download{
		Files:  []string{dest},
		Record: cache.Record{Type: manifest.TypeURL},
	}, nil
}
