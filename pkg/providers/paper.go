package providers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/manifest"
)

const paperAPI = "https://fill.papermc.io/v3"

// paperChannelStable is the channel floating stable selectors resolve
// to.
const paperChannelStable = "STABLE"

type paperBuild struct {
	ID        int64                    `json:"id"`
	Channel   string                   `json:"channel"`
	Downloads map[string]paperDownload `json:"downloads"`
}

type paperDownload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// serverDownload returns the server jar download of a build.
func (b *paperBuild) serverDownload() (*paperDownload, error) {
	d, ok := b.Downloads["server:default"]
	if !ok {
		return nil, faults.NewUpstream(nil, "paper build %d has no server download", b.ID)
	}
	return &d, nil
}

// PaperProvider downloads the Paper server jar from the PaperMC
// downloads API.
type PaperProvider struct{}

func (p *PaperProvider) listBuilds(ctx context.Context, env *Env) ([]paperBuild, error) {
	u := fmt.Sprintf("%s/projects/paper/versions/%s/builds", paperAPI, env.GameVersion)
	var builds []paperBuild
	if err := env.Fetch.GetJSON(ctx, u, &builds); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, faults.NewNotFound("paper has no builds for game version %s", env.GameVersion)
		}
		return nil, faults.NewUpstream(err, "listing paper builds for %s", env.GameVersion)
	}
	return builds, nil
}

// resolve picks the build matching the core's selector. The API returns
// builds newest first.
func (p *PaperProvider) resolve(ctx context.Context, env *Env, c *manifest.PaperCore) (*paperBuild, error) {
	if !c.IsLatest() {
		u := fmt.Sprintf("%s/projects/paper/versions/%s/builds/%d", paperAPI, env.GameVersion, c.Build.Number)
		var build paperBuild
		if err := env.Fetch.GetJSON(ctx, u, &build); err != nil {
			if fetch.IsStatus(err, http.StatusNotFound) {
				return nil, faults.NewNotFound("no paper build %d for game version %s", c.Build.Number, env.GameVersion)
			}
			return nil, faults.NewUpstream(err, "fetching paper build %d", c.Build.Number)
		}
		return &build, nil
	}

	builds, err := p.listBuilds(ctx, env)
	if err != nil {
		return nil, err
	}
	for i := range builds {
		b := &builds[i]
		if c.Build.LatestStable && !strings.EqualFold(b.Channel, paperChannelStable) {
			continue
		}
		if len(c.Channels) > 0 && !channelAllowed(b.Channel, c.Channels) {
			continue
		}
		return b, nil
	}
	return nil, faults.NewNotFound("no paper build for game version %s matches selector %s", env.GameVersion, c.Build)
}

func channelAllowed(channel string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(channel, a) {
			return true
		}
	}
	return false
}

func (p *PaperProvider) Download(ctx context.Context, env *Env, core manifest.Core) (*Download, error) {
	c, ok := core.(*manifest.PaperCore)
	if !ok {
		return nil, faults.NewConfig("paper provider received a %s core", core.Type())
	}
	build, err := p.resolve(ctx, env, c)
	if err != nil {
		return nil, err
	}
	dlInfo, err := build.serverDownload()
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(env.ServerRoot, c.FileName())
	if err := env.Fetch.Download(ctx, dlInfo.URL, dest); err != nil {
		return nil, faults.NewUpstream(err, "downloading paper build %d", build.ID)
	}
	env.Log.Infof("installed paper build %d (%s channel)", build.ID, strings.ToLower(build.Channel))
	return &Download{
		Files: []string{dest},
		Record: cache.Record{
			Type:        manifest.TypePaper,
			BuildNumber: build.ID,
		},
	}, nil
}

func (p *PaperProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares build numbers, which are monotonic per game
// version.
func (p *PaperProvider) HasUpdate(ctx context.Context, env *Env, core manifest.Core, cached *cache.Record) (UpdateStatus, error) {
	c, ok := core.(*manifest.PaperCore)
	if !ok {
		return UpToDate, faults.NewConfig("paper provider received a %s core", core.Type())
	}
	build, err := p.resolve(ctx, env, c)
	if err != nil {
		return UpToDate, err
	}
	switch {
	case build.ID == cached.BuildNumber:
		return UpToDate, nil
	case build.ID < cached.BuildNumber:
		return Ahead, nil
	default:
		return Outdated, nil
	}
}
