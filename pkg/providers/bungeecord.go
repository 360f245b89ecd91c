package providers

import (
	"context"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/manifest"
)

const (
	bungeecordJenkinsURL = "https://hub.spigotmc.org/jenkins"
	bungeecordJob        = "BungeeCord"
)

// BungeecordProvider installs the BungeeCord proxy jar. BungeeCord is
// published on the SpigotMC Jenkins instance, so the provider wraps a
// synthetic jenkins asset pinned to that host and job.
type BungeecordProvider struct {
	jenkins JenkinsProvider

	// jenkinsURL overrides the upstream host in tests.
	jenkinsURL string
}

type serverRootGroup struct {
	root string
}

func (serverRootGroup) Name() string { return "core" }

func (g serverRootGroup) Folder(manifest.Asset) (string, error) { return g.root, nil }

func (p *BungeecordProvider) asset(c *manifest.BungeecordCore) *manifest.JenkinsAsset {
	u := p.jenkinsURL
	if u == "" {
		u = bungeecordJenkinsURL
	}
	return &manifest.JenkinsAsset{
		AssetCommon: manifest.AssetCommon{
			AssetID: "(BungeeCord)@bungeecord",
			FileSelector: manifest.SelectorSpec{Inline: &manifest.PatternSelector{
				Pattern: manifest.MustPattern(`BungeeCord\.jar`),
				Mode:    "full",
			}},
		},
		Version: c.Build,
		URL:     u,
		Job:     bungeecordJob,
	}
}

func (p *BungeecordProvider) Download(ctx context.Context, env *Env, core manifest.Core) (*Download, error) {
	c, ok := core.(*manifest.BungeecordCore)
	if !ok {
		return nil, faults.NewConfig("bungeecord provider received a %s core", core.Type())
	}
	dl, err := p.jenkins.Download(ctx, env, p.asset(c), serverRootGroup{root: env.ServerRoot})
	if err != nil {
		return nil, err
	}
	dl.Record.Type = manifest.TypeBungeecord
	env.Log.Infof("installed bungeecord build %d", dl.Record.BuildNumber)
	return dl, nil
}

func (p *BungeecordProvider) SupportsUpdateChecking() bool { return true }

// HasUpdate compares build numbers through the wrapped jenkins
// provider.
func (p *BungeecordProvider) HasUpdate(ctx context.Context, env *Env, core manifest.Core, cached *cache.Record) (UpdateStatus, error) {
	c, ok := core.(*manifest.BungeecordCore)
	if !ok {
		return UpToDate, faults.NewConfig("bungeecord provider received a %s core", core.Type())
	}
	return p.jenkins.HasUpdate(ctx, env, p.asset(c), cached)
}
