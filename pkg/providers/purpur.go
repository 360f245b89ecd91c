package providers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
)

const purpurAPI = "https://api.purpurmc.org/v2/purpur"

type purpurVersion struct {
	Builds purpurBuilds `json:"builds"`
}

type purpurBuilds struct {
	Latest string   `json:"latest"`
	All    []string `json:"all"`
}

type purpurBuild struct {
	Build  string `json:"build"`
	Result string `json:"result"`
}

// PurpurProvider downloads the Purpur server jar from the Purpur
// downloads API. Build numbers arrive as strings on the wire.
type PurpurProvider struct{}

func (p *PurpurProvider) versionInfo(ctx context.Context, env *Env) (*purpurVersion, error) {
	u := fmt.Sprintf("%s/%s", purpurAPI, env.GameVersion)
	var info purpurVersion
	if err := env.Fetch.GetJSON(ctx, u, &info); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewNotFound("purpur has no builds for game version %s", env.GameVersion)
		}
		return nil, faults.NewUpstream(err, "listing purpur builds for %s", env.GameVersion)
	}
	return &info, nil
}

func (p *PurpurProvider) buildInfo(ctx context.Context, env *Env, build string) (*purpurBuild, error) {
	u := fmt.Sprintf("%s/%s/%s", purpurAPI, env.GameVersion, build)
	var info purpurBuild
	if err := env.Fetch.GetJSON(ctx, u, &info); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewNotFound("no purpur build %s for game version %s", build, env.GameVersion)
		}
		return nil, faults.NewUpstream(err, "fetching purpur build %s", build)
	}
	return &info, nil
}

// resolve picks the build matching the core's selector. Floating
// resolution walks from the latest build towards older ones until a
// successful build is found, unless experimental builds are allowed.
func (p *PurpurProvider) resolve(ctx context.Context, env *Env, c *manifest.PurpurCore) (int64, error) {
	if !c.Build.Latest {
		b, err := p.buildInfo(ctx, env, strconv.FormatInt(c.Build.Number, 10))
		if err != nil {
			return 0, err
		}
		return parseBuildNumber(b.Build)
	}

	info, err := p.versionInfo(ctx, env)
	if err != nil {
		return 0, err
	}
	if c.AllowExperimental {
		return parseBuildNumber(info.Builds.Latest)
	}
	for i := len(info.Builds.All) - 1; i >= 0; i-- {
		b, err := p.buildInfo(ctx, env, info.Builds.All[i])
		if err != nil {
			return 0, err
		}
		if b.Result == "SUCCESS" {
			return parseBuildNumber(b.Build)
		}
	}
	return 0, faults.NewNotFound("no successful purpur build for game version %s", env.GameVersion)
}

func parseBuildNumber(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, faults.NewUpstream(err, "unparsable purpur build number %q", s)
	}
	return n, nil
}

func (p *PurpurProvider) Download(ctx context.Context, env *Env, core manifest.Core) (*Download, error) {
	c, ok := core.(*manifest.PurpurCore)
	if !ok {
		return nil, faults.NewConfig("purpur provider received a %s core", core.Type())
	}
	build, err := p.resolve(ctx, env, c)
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(env.ServerRoot, c.FileName())
	src := fmt.Sprintf("%s/%s/%d/download", purpurAPI, env.GameVersion, build)
	if err := env.Fetch.Download(ctx, src, dest); err != nil {
		return nil, faults.NewUpstream(err, "downloading purpur build %d", build)
	}
	env.Log.Infof("installed purpur build %d", build)
	return &Download{
		Files: []string{dest},
		Record: cache.Record{
			Type:        manifest.TypePurpur,
			BuildNumber: build,
		},
	}, nil
}

func (p *PurpurProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares build numbers, which are monotonic per game
// version.
func (p *PurpurProvider) HasUpdate(ctx context.Context, env *Env, core manifest.Core, cached *cache.Record) (UpdateStatus, error) {
	c, ok := core.(*manifest.PurpurCore)
	if !ok {
		return UpToDate, faults.NewConfig("purpur provider received a %s core", core.Type())
	}
	build, err := p.resolve(ctx, env, c)
	if err != nil {
		return UpToDate, err
	}
	switch {
	case build == cached.BuildNumber:
		return UpToDate, nil
	case build < cached.BuildNumber:
		return Ahead, nil
	default:
		return Outdated, nil
	}
}
