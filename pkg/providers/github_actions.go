package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/serverkit/serverkit/pkg/archive"
	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
)

type workflowRunList struct {
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

type workflowRun struct {
	ID        int64 `json:"id"`
	RunNumber int64 `json:"run_number"`
}

type artifactList struct {
	Artifacts []workflowArtifact `json:"artifacts"`
}

type workflowArtifact struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ArchiveDownloadURL string `json:"archive_download_url"`
	Expired            bool   `json:"expired"`
}

// GithubActionsProvider downloads artifacts produced by a GitHub
// Actions workflow run. Artifact downloads always require a token.
type GithubActionsProvider struct{}

func (p *GithubActionsProvider) listRuns(ctx context.Context, env *Env, a *manifest.GithubActionsAsset) ([]workflowRun, error) {
	u := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/runs?branch=%s&status=success&per_page=100",
		githubAPI, a.Repository, url.PathEscape(a.Workflow), url.QueryEscape(a.Branch))
	var list workflowRunList
	if err := env.Fetch.GetJSON(ctx, u, &list); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewNotFound("no workflow %q in %s", a.Workflow, a.Repository)
		}
		return nil, faults.NewUpstream(err, "listing workflow runs of %s", manifest.ResolveID(a))
	}
	return list.WorkflowRuns, nil
}

// resolve picks the run matching the asset's selector. The API returns
// runs newest first.
func (p *GithubActionsProvider) resolve(ctx context.Context, env *Env, a *manifest.GithubActionsAsset) (*workflowRun, error) {
	runs, err := p.listRuns(ctx, env, a)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, faults.NewNotFound("no successful runs of %s on branch %s", manifest.ResolveID(a), a.Branch)
	}
	if a.IsLatest() {
		return &runs[0], nil
	}
	for i := range runs {
		if runs[i].RunNumber == a.Version.Number {
			return &runs[i], nil
		}
	}
	return nil, faults.NewNotFound("no successful run #%d of %s on branch %s", a.Version.Number, manifest.ResolveID(a), a.Branch)
}

func (p *GithubActionsProvider) Download(ctx context.Context, env *Env, asset manifest.Asset, g Group) (*Download, error) {
	a, ok := asset.(*manifest.GithubActionsAsset)
	if !ok {
		return nil, wrongAssetType(manifest.TypeGithubActions, asset)
	}
	run, err := p.resolve(ctx, env, a)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repos/%s/actions/runs/%d/artifacts", githubAPI, a.Repository, run.ID)
	var list artifactList
	if err := env.Fetch.GetJSON(ctx, u, &list); err != nil {
		return nil, faults.NewUpstream(err, "listing artifacts of run #%d", run.RunNumber)
	}

	var artifacts []workflowArtifact
	for _, art := range list.Artifacts {
		if a.NamePattern == nil || a.NamePattern.Search(art.Name) {
			artifacts = append(artifacts, art)
		}
	}
	if len(artifacts) == 0 {
		return nil, faults.NewNotFound("run #%d of %s has no matching artifacts", run.RunNumber, manifest.ResolveID(a))
	}

	folder, err := g.Folder(a)
	if err != nil {
		return nil, err
	}
	sel, err := a.Common().FileSelector.Resolve()
	if err != nil {
		return nil, faults.NewConfig("%v", err).WithAsset(manifest.ResolveID(a))
	}

	dl := &Download{
		Record: cache.Record{
			Type:      manifest.TypeGithubActions,
			RunID:     run.ID,
			RunNumber: run.RunNumber,
		},
	}
	for _, art := range artifacts {
		if art.Expired {
			return nil, faults.NewFriendly("artifact %q of run #%d has expired; CI artifacts are retained for a limited time, pick a newer run", art.Name, run.RunNumber)
		}
		// Artifacts come wrapped in a zip regardless of content.
		tmp, err := env.Fetch.DownloadTemp(ctx, art.ArchiveDownloadURL, art.Name+".zip")
		if err != nil {
			if fetch.IsStatus(err, http.StatusGone) {
				return nil, faults.NewFriendly("artifact %q of run #%d has expired; CI artifacts are retained for a limited time, pick a newer run", art.Name, run.RunNumber)
			}
			return nil, faults.NewUpstream(err, "downloading artifact %q", art.Name)
		}
		names, err := archive.ListZip(tmp)
		if err != nil {
			return nil, faults.NewUpstream(err, "reading artifact %q", art.Name)
		}
		wanted := sel.FindTargets(names)
		if len(wanted) == 0 {
			continue
		}
		keep := make(map[string]bool, len(wanted))
		for _, n := range wanted {
			keep[n] = true
		}
		extracted, err := archive.ExtractZip(tmp, folder, func(name string) bool { return keep[name] })
		if err != nil {
			return nil, faults.NewUpstream(err, "extracting artifact %q", art.Name)
		}
		dl.Files = append(dl.Files, extracted...)
	}
	if len(dl.Files) == 0 {
		return nil, faults.NewNotFound("file selector matched no files in the artifacts of run #%d", run.RunNumber)
	}
	return dl, nil
}

func (p *GithubActionsProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares run numbers, which are monotonic per workflow. A
// cached run number above the latest successful one means the branch
// history was rewound.
func (p *GithubActionsProvider) HasUpdate(ctx context.Context, env *Env, asset manifest.Asset, cached *cache.Record) (UpdateStatus, error) {
	a, ok := asset.(*manifest.GithubActionsAsset)
	if !ok {
		return UpToDate, wrongAssetType(manifest.TypeGithubActions, asset)
	}
	run, err := p.resolve(ctx, env, a)
	if err != nil {
		return UpToDate, err
	}
	switch {
	case run.RunNumber == cached.RunNumber:
		return UpToDate, nil
	case run.RunNumber < cached.RunNumber:
		return Ahead, nil
	default:
		return Outdated, nil
	}
}
