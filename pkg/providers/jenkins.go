package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
)

type jenkinsJob struct {
	LastSuccessfulBuild *jenkinsBuildRef `json:"lastSuccessfulBuild"`
}

type jenkinsBuildRef struct {
	Number int64  `json:"number"`
	URL    string `json:"url"`
}

type jenkinsBuild struct {
	Number    int64             `json:"number"`
	URL       string            `json:"url"`
	Result    string            `json:"result"`
	Artifacts []jenkinsArtifact `json:"artifacts"`
}

type jenkinsArtifact struct {
	FileName     string `json:"fileName"`
	RelativePath string `json:"relativePath"`
}

// JenkinsProvider downloads build artifacts from a Jenkins instance's
// JSON API.
type JenkinsProvider struct{}

func (p *JenkinsProvider) jobURL(a *manifest.JenkinsAsset) string {
	return strings.TrimRight(a.URL, "/") + "/job/" + url.PathEscape(a.Job)
}

// resolve returns the build matching the asset's selector, including
// its artifact list.
func (p *JenkinsProvider) resolve(ctx context.Context, env *Env, a *manifest.JenkinsAsset) (*jenkinsBuild, error) {
	id := manifest.ResolveID(a)
	var buildURL string
	if a.IsLatest() {
		var job jenkinsJob
		if err := env.Fetch.GetJSON(ctx, p.jobURL(a)+"/api/json", &job); err != nil {
			if fetch.IsStatus(err, http.StatusNotFound) {
				return nil, faults.NewNotFound("no jenkins job %q at %s", a.Job, a.URL)
			}
			return nil, faults.NewUpstream(err, "fetching jenkins job %s", id)
		}
		if job.LastSuccessfulBuild == nil {
			return nil, faults.NewNotFound("jenkins job %s has no successful build", id)
		}
		buildURL = job.LastSuccessfulBuild.URL
	} else {
		buildURL = fmt.Sprintf("%s/%d/", p.jobURL(a), a.Version.Number)
	}

	var build jenkinsBuild
	if err := env.Fetch.GetJSON(ctx, strings.TrimRight(buildURL, "/")+"/api/json", &build); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewNotFound("no build %s of jenkins job %s", a.Version, id)
		}
		return nil, faults.NewUpstream(err, "fetching build %s of jenkins job %s", a.Version, id)
	}
	if build.Result != "SUCCESS" {
		return nil, faults.NewFriendly("build #%d of jenkins job %s is not completed (result %q)", build.Number, id, build.Result)
	}
	build.URL = buildURL
	return &build, nil
}

func (p *JenkinsProvider) Download(ctx context.Context, env *Env, asset manifest.Asset, g Group) (*Download, error) {
	a, ok := asset.(*manifest.JenkinsAsset)
	if !ok {
		return nil, wrongAssetType(manifest.TypeJenkins, asset)
	}
	build, err := p.resolve(ctx, env, a)
	if err != nil {
		return nil, err
	}
	if len(build.Artifacts) == 0 {
		return nil, faults.NewNotFound("build #%d of %s has no artifacts", build.Number, manifest.ResolveID(a))
	}

	names := make([]string, len(build.Artifacts))
	byName := make(map[string]jenkinsArtifact, len(build.Artifacts))
	for i, art := range build.Artifacts {
		names[i] = art.FileName
		byName[art.FileName] = art
	}
	wanted, err := selectFiles(a, names)
	if err != nil {
		return nil, err
	}

	folder, err := g.Folder(a)
	if err != nil {
		return nil, err
	}
	dl := &Download{
		Record: cache.Record{
			Type:        manifest.TypeJenkins,
			BuildNumber: build.Number,
		},
	}
	for _, name := range wanted {
		art := byName[name]
		src := strings.TrimRight(build.URL, "/") + "/artifact/" + art.RelativePath
		dest := filepath.Join(folder, art.FileName)
		if err := env.Fetch.Download(ctx, src, dest); err != nil {
			return nil, faults.NewUpstream(err, "downloading %s", art.FileName)
		}
		dl.Files = append(dl.Files, dest)
	}
	return dl, nil
}

func (p *JenkinsProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares build numbers, which are monotonic per job.
func (p *JenkinsProvider) HasUpdate(ctx context.Context, env *Env, asset manifest.Asset, cached *cache.Record) (UpdateStatus, error) {
	a, ok := asset.(*manifest.JenkinsAsset)
	if !ok {
		return UpToDate, wrongAssetType(manifest.TypeJenkins, asset)
	}
	build, err := p.resolve(ctx, env, a)
	if err != nil {
		return UpToDate, err
	}
	switch {
	case build.Number == cached.BuildNumber:
		return UpToDate, nil
	case build.Number < cached.BuildNumber:
		return Ahead, nil
	default:
		return Outdated, nil
	}
}
