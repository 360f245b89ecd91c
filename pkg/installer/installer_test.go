package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/providers"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

// fakeProvider is a scriptable provider for lifecycle tests. Every
// download writes one file named after the asset id.
type fakeProvider struct {
	status    providers.UpdateStatus
	statusErr error
	supports  bool
	failIDs   map[string]bool

	downloads int
	checks    int
}

func (f *fakeProvider) Download(ctx context.Context, env *providers.Env, a manifest.Asset, g providers.Group) (*providers.Download, error) {
	f.downloads++
	if f.failIDs[manifest.ResolveID(a)] {
		return nil, errors.New("upstream down")
	}
	folder, err := g.Folder(a)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(folder, manifest.ResolveID(a)+".jar")
	if err := os.WriteFile(path, []byte("jar"), 0o644); err != nil {
		return nil, err
	}
	return &providers.Download{
		Files:  []string{path},
		Record: cache.Record{Type: a.Type(), Tag: "v2"},
	}, nil
}

func (f *fakeProvider) SupportsUpdateChecking() bool { return f.supports }

func (f *fakeProvider) HasUpdate(ctx context.Context, env *providers.Env, a manifest.Asset, cached *cache.Record) (providers.UpdateStatus, error) {
	f.checks++
	return f.status, f.statusErr
}

func githubAsset(id, version string) *manifest.GithubReleaseAsset {
	return &manifest.GithubReleaseAsset{
		AssetCommon: manifest.AssetCommon{AssetID: id, Caching: true},
		Version:     version,
		Repository:  "owner/" + id,
	}
}

// newTestInstaller wires a manifest and a fake github provider over a
// fresh install root.
func newTestInstaller(t *testing.T, m *manifest.Manifest, fake *fakeProvider) (*Installer, *cache.Store) {
	t.Helper()
	root := t.TempDir()
	log := telemetry.NewLogger(telemetry.DefaultConfig(false))

	store, err := cache.NewStore(filepath.Join(root, "cache.json"), root, "default", m.GameVersion, log)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	regs := providers.NewRegistries()
	regs.Assets.Register(manifest.TypeGithub, fake)

	env := &providers.Env{
		GameVersion: m.GameVersion,
		Profile:     "default",
		ServerRoot:  root,
		Log:         log,
	}
	return New(m, store, regs, env), store
}

// TestInstallCacheHit proves a second identical run downloads nothing.
func TestInstallCacheHit(t *testing.T) {
	fake := &fakeProvider{}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{githubAsset("alpha", "latest")},
	}
	inst, store := newTestInstaller(t, m, fake)
	ctx := context.Background()

	if err := inst.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if fake.downloads != 1 {
		t.Fatalf("downloads = %d, want 1", fake.downloads)
	}
	if _, ok := store.Entries()["alpha"]; !ok {
		t.Fatal("entry was not cached")
	}

	if err := inst.Install(ctx); err != nil {
		t.Fatalf("second install failed: %v", err)
	}
	if fake.downloads != 1 {
		t.Errorf("second run downloaded again: downloads = %d", fake.downloads)
	}
}

// TestInstallPartialFailure proves one broken asset does not block the
// rest of the batch.
func TestInstallPartialFailure(t *testing.T) {
	fake := &fakeProvider{failIDs: map[string]bool{"broken": true}}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins: []manifest.Asset{
			githubAsset("broken", "latest"),
			githubAsset("fine", "latest"),
		},
	}
	inst, store := newTestInstaller(t, m, fake)

	if err := inst.Install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if _, ok := store.Entries()["broken"]; ok {
		t.Error("failed asset must not be cached")
	}
	if _, ok := store.Entries()["fine"]; !ok {
		t.Error("sibling of a failed asset must still install")
	}
	if fake.downloads != 2 {
		t.Errorf("downloads = %d, want both assets attempted", fake.downloads)
	}
}

// TestInstallGate excludes assets whose gate evaluates false.
func TestInstallGate(t *testing.T) {
	fake := &fakeProvider{}
	gated := githubAsset("gated", "latest")
	gated.If = `env.profile == "prod"`
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{gated},
	}
	inst, store := newTestInstaller(t, m, fake)

	if err := inst.Install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if fake.downloads != 0 {
		t.Errorf("gated asset was downloaded %d times", fake.downloads)
	}
	if len(store.Entries()) != 0 {
		t.Error("gated asset must not be cached")
	}
}

// TestNoteDeferred records note assets instead of downloading them.
func TestNoteDeferred(t *testing.T) {
	fake := &fakeProvider{}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Mods: []manifest.Asset{
			&manifest.NoteAsset{
				AssetCommon: manifest.AssetCommon{AssetID: "manual", Caching: true},
				Note:        "accept the EULA by hand",
			},
		},
	}
	inst, store := newTestInstaller(t, m, fake)

	if err := inst.Install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if fake.downloads != 0 {
		t.Error("note assets must never download")
	}
	if len(inst.notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(inst.notes))
	}
	if len(store.Entries()) != 0 {
		t.Error("note assets must not be cached")
	}
}

// seedInstalled installs one asset and resets the fake's counters.
func seedInstalled(t *testing.T, inst *Installer, fake *fakeProvider) {
	t.Helper()
	if err := inst.Install(context.Background()); err != nil {
		t.Fatalf("seed install failed: %v", err)
	}
	if fake.downloads != 1 {
		t.Fatalf("seed install downloads = %d, want 1", fake.downloads)
	}
	fake.downloads = 0
	fake.checks = 0
}

// TestUpdatePinnedNeverUpdates downgrades Outdated to Found for pinned
// versions and leaves the cache entry untouched.
func TestUpdatePinnedNeverUpdates(t *testing.T) {
	fake := &fakeProvider{supports: true, status: providers.Outdated}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{githubAsset("pinned", "v1.0")},
	}
	inst, store := newTestInstaller(t, m, fake)
	seedInstalled(t, inst, fake)
	before := *store.Entries()["pinned"]

	if err := inst.Update(context.Background(), false); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if fake.checks != 1 {
		t.Errorf("checks = %d, want 1", fake.checks)
	}
	if fake.downloads != 0 {
		t.Error("pinned asset must never be reinstalled")
	}
	if !reflect.DeepEqual(*store.Entries()["pinned"], before) {
		t.Error("pinned asset's cache entry must stay untouched")
	}
}

// TestUpdateDryRun never mutates the store regardless of provider
// status.
func TestUpdateDryRun(t *testing.T) {
	fake := &fakeProvider{supports: true, status: providers.Outdated}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{githubAsset("floating", "latest")},
	}
	inst, store := newTestInstaller(t, m, fake)
	seedInstalled(t, inst, fake)
	before := *store.Entries()["floating"]

	if err := inst.Update(context.Background(), true); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if fake.downloads != 0 {
		t.Error("dry run must not reinstall")
	}
	if !reflect.DeepEqual(*store.Entries()["floating"], before) {
		t.Error("dry run must not mutate the cache entry")
	}
}

// TestUpdateUnsupportedSkipped yields Skipped without calling upstream.
func TestUpdateUnsupportedSkipped(t *testing.T) {
	fake := &fakeProvider{supports: false}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{githubAsset("plain", "latest")},
	}
	inst, _ := newTestInstaller(t, m, fake)
	seedInstalled(t, inst, fake)

	if err := inst.Update(context.Background(), false); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if fake.checks != 0 {
		t.Error("unsupported provider must never be asked for updates")
	}
	if fake.downloads != 0 {
		t.Error("skipped asset must not be reinstalled")
	}
}

// TestUpdateOutdatedReinstalls invalidates and reinstalls a floating
// outdated asset.
func TestUpdateOutdatedReinstalls(t *testing.T) {
	fake := &fakeProvider{supports: true, status: providers.Outdated}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{githubAsset("floating", "latest")},
	}
	inst, store := newTestInstaller(t, m, fake)
	seedInstalled(t, inst, fake)

	if err := inst.Update(context.Background(), false); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if fake.downloads != 1 {
		t.Errorf("downloads = %d, want one reinstall", fake.downloads)
	}
	if _, ok := store.Entries()["floating"]; !ok {
		t.Error("reinstalled asset must be cached again")
	}
}

// TestUpdateAheadIsTerminal treats Ahead as informational and leaves
// the entry alone.
func TestUpdateAheadIsTerminal(t *testing.T) {
	fake := &fakeProvider{supports: true, status: providers.Ahead}
	m := &manifest.Manifest{
		GameVersion: "1.21",
		Plugins:     []manifest.Asset{githubAsset("rewound", "latest")},
	}
	inst, store := newTestInstaller(t, m, fake)
	seedInstalled(t, inst, fake)
	before := *store.Entries()["rewound"]

	if err := inst.Update(context.Background(), false); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if fake.downloads != 0 {
		t.Error("ahead status must not trigger a reinstall")
	}
	after := store.Entries()["rewound"]
	if after == nil {
		t.Fatal("entry disappeared")
	}
	if after.AssetHash != before.AssetHash || after.UpdateTime != before.UpdateTime {
		t.Errorf("entry changed: before %s@%d, after %s@%d", before.AssetHash, before.UpdateTime, after.AssetHash, after.UpdateTime)
	}
	if !reflect.DeepEqual(after.Data, before.Data) {
		t.Errorf("record changed: %+v -> %+v", before.Data, after.Data)
	}
}

// TestNormalize keeps out-of-root paths absolute.
func TestNormalize(t *testing.T) {
	fake := &fakeProvider{}
	m := &manifest.Manifest{GameVersion: "1.21"}
	inst, store := newTestInstaller(t, m, fake)

	inside := filepath.Join(store.Root(), "plugins", "a.jar")
	outside := filepath.Join(t.TempDir(), "b.jar")
	got := inst.normalize([]string{inside, outside})

	if got[0] != filepath.Join("plugins", "a.jar") {
		t.Errorf("in-root path = %q, want relative", got[0])
	}
	if got[1] != outside {
		t.Errorf("out-of-root path = %q, want untouched absolute", got[1])
	}
}
