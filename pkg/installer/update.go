package installer

import (
	"context"
	"fmt"

	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/providers"
)

// UpdateResult is the terminal state of one asset in the update pass.
type UpdateResult int

const (
	// UpdateSkipped: the provider does not support update checking.
	UpdateSkipped UpdateResult = iota

	// UpdateUpToDate: the cached artifact matches upstream.
	UpdateUpToDate

	// UpdateFound: a newer artifact exists but was not installed, either
	// because the version selector is pinned or because of dry mode.
	UpdateFound

	// UpdateUpdated: the asset was invalidated and reinstalled.
	UpdateUpdated

	// UpdateFailed: the upstream check or the reinstall errored.
	UpdateFailed
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateSkipped:
		return "skipped"
	case UpdateUpToDate:
		return "up-to-date"
	case UpdateFound:
		return "found"
	case UpdateUpdated:
		return "updated"
	case UpdateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UpdateSummary aggregates update outcomes for one group.
type UpdateSummary struct {
	UpToDate int
	Updated  int
	Found    int
	Failed   int
	Skipped  int
}

func (s *UpdateSummary) count(r UpdateResult) {
	switch r {
	case UpdateUpToDate:
		s.UpToDate++
	case UpdateUpdated:
		s.Updated++
	case UpdateFound:
		s.Found++
	case UpdateFailed:
		s.Failed++
	case UpdateSkipped:
		s.Skipped++
	}
}

func (s UpdateSummary) String() string {
	return fmt.Sprintf("%d up-to-date, %d updated, %d found, %d failed, %d skipped", s.UpToDate, s.Updated, s.Found, s.Failed, s.Skipped)
}

// Update runs the update pass: it refreshes previously cached assets
// and the core, never installing anything new. In dry mode nothing is
// mutated; newer versions are only reported.
func (inst *Installer) Update(ctx context.Context, dry bool) error {
	inst.store.Load()

	if inst.manifest.Core != nil {
		r := inst.updateCore(ctx, dry)
		inst.log.Infof("core: %s", r)
	}

	for _, g := range inst.groups() {
		assets := inst.groupAssets(g.name)
		if len(assets) == 0 {
			continue
		}
		var sum UpdateSummary
		for _, a := range assets {
			r, checked := inst.updateAsset(ctx, g, a, dry)
			if checked {
				sum.count(r)
			}
		}
		inst.log.Infof("%s: %s", g.name, sum)
	}

	if err := inst.store.Save(); err != nil {
		inst.log.WithError(err).Error("cannot save cache")
	}
	return nil
}

// updateAsset runs the update state machine for one asset. The second
// return is false when the asset does not participate (notes, caching
// disabled, nothing cached).
func (inst *Installer) updateAsset(ctx context.Context, g *group, a manifest.Asset, dry bool) (UpdateResult, bool) {
	id := manifest.ResolveID(a)
	log := inst.log.WithAssetID(id)

	if _, isNote := a.(*manifest.NoteAsset); isNote || !a.Common().Caching {
		return 0, false
	}
	entry := inst.store.CheckAsset(id, manifest.StableHash(a))
	if entry == nil {
		log.Debug("not cached, nothing to update")
		return 0, false
	}

	provider, err := inst.regs.Assets.Require(a.Type())
	if err != nil {
		inst.logAssetError(log, err)
		return UpdateFailed, true
	}
	if !provider.SupportsUpdateChecking() {
		log.Debug("provider does not support update checking")
		return UpdateSkipped, true
	}

	status, err := provider.HasUpdate(ctx, inst.env, a, &entry.Data)
	if err != nil {
		inst.logAssetError(log, err)
		return UpdateFailed, true
	}
	switch status {
	case providers.Ahead:
		log.Infof("cached artifact is ahead of upstream; leaving it alone")
		return UpdateUpToDate, true
	case providers.UpToDate:
		log.Debug("up to date")
		return UpdateUpToDate, true
	}

	// Outdated from here on.
	if !a.IsLatest() {
		log.Infof("newer version available, but the version is pinned")
		return UpdateFound, true
	}
	if dry {
		log.Infof("newer version available")
		return UpdateFound, true
	}

	inst.store.InvalidateAsset(id, "outdated")
	if _, err := inst.installAsset(ctx, g, a); err != nil {
		inst.logAssetError(log, err)
		return UpdateFailed, true
	}
	if err := inst.store.Save(); err != nil {
		log.WithError(err).Warn("cannot save cache")
	}
	log.Info("updated")
	return UpdateUpdated, true
}

// updateCore applies the identical state machine to the singular core
// record.
func (inst *Installer) updateCore(ctx context.Context, dry bool) UpdateResult {
	core := inst.manifest.Core
	log := inst.log.WithField("core", core.Type())

	entry := inst.store.CheckCore(core.Type(), core.VersionHash(inst.env.GameVersion))
	if entry == nil {
		log.Debug("core not cached, nothing to update")
		return UpdateSkipped
	}

	provider, err := inst.regs.Cores.Require(core.Type())
	if err != nil {
		inst.logAssetError(log, err)
		return UpdateFailed
	}
	if !provider.SupportsUpdateChecking() {
		return UpdateSkipped
	}

	status, err := provider.HasUpdate(ctx, inst.env, core, &entry.Data)
	if err != nil {
		inst.logAssetError(log, err)
		return UpdateFailed
	}
	switch status {
	case providers.Ahead:
		log.Infof("cached core build is ahead of upstream; leaving it alone")
		return UpdateUpToDate
	case providers.UpToDate:
		return UpdateUpToDate
	}

	if !core.IsLatest() {
		log.Infof("newer build available, but the build is pinned")
		return UpdateFound
	}
	if dry {
		log.Infof("newer build available")
		return UpdateFound
	}

	inst.store.InvalidateCore("outdated")
	if err := inst.installCore(ctx); err != nil {
		inst.logAssetError(log, err)
		return UpdateFailed
	}
	log.Info("core updated")
	return UpdateUpdated
}
