// Package installer orchestrates the per-asset install and update
// lifecycles. It owns the cache store and the provider registries; one
// Installer instance serves one sequential run.
package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/serverkit/serverkit/pkg/actions"
	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/providers"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

// group binds a manifest asset group to its target folder under the
// install root. The customs group takes its folder from each asset.
type group struct {
	name       string
	subfolder  string
	perAsset   bool
	serverRoot string
}

func (g *group) Name() string { return g.name }

func (g *group) Folder(a manifest.Asset) (string, error) {
	folder := g.subfolder
	if g.perAsset {
		folder = a.Common().Folder
	}
	abs := folder
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.serverRoot, folder)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("creating target folder %s: %w", abs, err)
	}
	return abs, nil
}

// note is a deferred manual installation step, surfaced once at the
// end of the run.
type note struct {
	assetID string
	text    string
}

// Summary aggregates per-group install outcomes.
type Summary struct {
	Installed int
	Cached    int
	Failed    int
	Excluded  int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d installed, %d cached, %d failed, %d excluded", s.Installed, s.Cached, s.Failed, s.Excluded)
}

// Installer runs install and update passes over one manifest against
// one install root. Not safe for concurrent use.
type Installer struct {
	manifest  *manifest.Manifest
	store     *cache.Store
	regs      *providers.Registries
	env       *providers.Env
	processor *actions.Processor
	log       *telemetry.Logger

	notes []note
}

// New creates an installer. The cache store must not be loaded yet;
// Install and Update load it themselves.
func New(m *manifest.Manifest, store *cache.Store, regs *providers.Registries, env *providers.Env) *Installer {
	return &Installer{
		manifest:  m,
		store:     store,
		regs:      regs,
		env:       env,
		processor: actions.NewProcessor(env.Log),
		log:       env.Log.NewComponentLogger("installer"),
	}
}

func (inst *Installer) groups() []*group {
	return []*group{
		{name: "mods", subfolder: "mods", serverRoot: inst.env.ServerRoot},
		{name: "plugins", subfolder: "plugins", serverRoot: inst.env.ServerRoot},
		{name: "datapacks", subfolder: filepath.Join("world", "datapacks"), serverRoot: inst.env.ServerRoot},
		{name: "customs", perAsset: true, serverRoot: inst.env.ServerRoot},
	}
}

func (inst *Installer) groupAssets(name string) []manifest.Asset {
	for _, g := range inst.manifest.Groups() {
		if g.Name == name {
			return g.Assets
		}
	}
	return nil
}

// Install runs the full install pass: cache load and prune, the core,
// every asset group, a final save and the deferred notes.
func (inst *Installer) Install(ctx context.Context) error {
	inst.store.Load()
	inst.store.Prune(inst.manifest.AssetIDs())

	if inst.manifest.Core != nil {
		if err := inst.installCore(ctx); err != nil {
			inst.logAssetError(inst.log.WithField("core", inst.manifest.Core.Type()), err)
		}
	}

	for _, g := range inst.groups() {
		assets := inst.groupAssets(g.name)
		if len(assets) == 0 {
			continue
		}
		sum := inst.installGroup(ctx, g, assets)
		inst.log.Infof("%s: %s", g.name, sum)
	}

	if err := inst.store.Save(); err != nil {
		inst.log.WithError(err).Error("cannot save cache")
	}
	inst.surfaceNotes()
	return nil
}

func (inst *Installer) installGroup(ctx context.Context, g *group, assets []manifest.Asset) Summary {
	var sum Summary
	for _, a := range assets {
		switch outcome, err := inst.installAsset(ctx, g, a); {
		case err != nil:
			inst.logAssetError(inst.log.WithAssetID(manifest.ResolveID(a)), err)
			sum.Failed++
		case outcome == outcomeCached:
			sum.Cached++
		case outcome == outcomeExcluded:
			sum.Excluded++
		case outcome == outcomeInstalled:
			sum.Installed++
		}
	}
	return sum
}

type outcome int

const (
	outcomeInstalled outcome = iota
	outcomeCached
	outcomeExcluded
)

// installAsset runs the install lifecycle for one asset. Errors are
// returned to the group loop, which counts and continues.
func (inst *Installer) installAsset(ctx context.Context, g Group, a manifest.Asset) (outcome, error) {
	id := manifest.ResolveID(a)
	log := inst.log.WithAssetID(id)

	if gate := a.Common().If; gate != "" {
		if !inst.processor.EvalGate(gate, actions.GateBindings(inst.env, a), log) {
			log.Debug("excluded by gate expression")
			return outcomeExcluded, nil
		}
	}

	if n, ok := a.(*manifest.NoteAsset); ok {
		inst.notes = append(inst.notes, note{assetID: id, text: n.Note})
		return outcomeExcluded, nil
	}

	hash := manifest.StableHash(a)
	if a.Common().Caching {
		if entry := inst.store.CheckAsset(id, hash); entry != nil {
			log.Debug("already installed")
			return outcomeCached, nil
		}
	}

	provider, err := inst.regs.Assets.Require(a.Type())
	if err != nil {
		return 0, faults.NewConfig("%v", err).WithAsset(id)
	}

	log.Infof("installing %s", id)
	dl, err := provider.Download(ctx, inst.env, a, g)
	if err != nil {
		return 0, err
	}

	if failed := inst.processor.Run(inst.env, a, dl); failed > 0 {
		log.Warnf("%d action(s) failed", failed)
	}

	rec := dl.Record
	rec.Files = inst.normalize(dl.Files)
	if a.Common().Caching {
		inst.store.StoreAsset(id, hash, rec)
		if err := inst.store.Save(); err != nil {
			log.WithError(err).Warn("cannot save cache")
		}
	}
	return outcomeInstalled, nil
}

func (inst *Installer) installCore(ctx context.Context) error {
	core := inst.manifest.Core
	log := inst.log.WithField("core", core.Type())

	versionHash := core.VersionHash(inst.env.GameVersion)
	if entry := inst.store.CheckCore(core.Type(), versionHash); entry != nil {
		log.Debugf("%s already installed", core.DisplayName())
		return nil
	}

	provider, err := inst.regs.Cores.Require(core.Type())
	if err != nil {
		return faults.NewConfig("%v", err)
	}

	log.Infof("installing %s", core.DisplayName())
	dl, err := provider.Download(ctx, inst.env, core)
	if err != nil {
		return err
	}

	rec := dl.Record
	rec.Files = inst.normalize(dl.Files)
	inst.store.StoreCore(versionHash, rec)
	if err := inst.store.Save(); err != nil {
		log.WithError(err).Warn("cannot save cache")
	}
	return nil
}

// normalize rewrites paths under the install root to be relative to
// it. Paths outside the root (custom out-of-root assets) stay
// absolute.
func (inst *Installer) normalize(files []string) []string {
	root := inst.store.Root()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil || strings.HasPrefix(rel, "..") {
			out[i] = f
			continue
		}
		out[i] = rel
	}
	return out
}

// logAssetError reports a per-asset failure. Friendly faults and
// missing versions surface their user-safe message; everything else
// gets the full chain.
func (inst *Installer) logAssetError(log *telemetry.Logger, err error) {
	if faults.IsFriendly(err) && !inst.env.Debug {
		log.Error(faults.UserMessage(err))
		return
	}
	log.Errorf("%v", err)
}

func (inst *Installer) surfaceNotes() {
	if len(inst.notes) == 0 {
		return
	}
	inst.log.Infof("%d asset(s) need manual steps:", len(inst.notes))
	for _, n := range inst.notes {
		inst.log.Infof("  %s: %s", n.assetID, n.text)
	}
}

// Group is re-exported for tests and callers wiring custom groups.
type Group = providers.Group
