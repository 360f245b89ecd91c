package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/serverkit/serverkit/pkg/telemetry"
)

func testLogger() *telemetry.Logger {
	return telemetry.NewLogger(telemetry.DefaultConfig(false))
}

// setupStore creates a loaded store over a fresh install root.
func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(filepath.Join(root, "cache.json"), root, "default", "1.21", testLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	store.Load()
	return store, root
}

func writeAssetFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("jar"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

// TestAssetRoundTrip stores an entry and gets it back unchanged across
// a save/load cycle.
func TestAssetRoundTrip(t *testing.T) {
	store, root := setupStore(t)
	writeAssetFile(t, root, "mods/sodium.jar")

	rec := Record{Type: "modrinth", Files: []string{"mods/sodium.jar"}, VersionID: "abc"}
	store.StoreAsset("sodium", "hash1", rec)
	if err := store.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded, err := NewStore(filepath.Join(root, "cache.json"), root, "default", "1.21", testLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	reloaded.Load()

	entry := reloaded.CheckAsset("sodium", "hash1")
	if entry == nil {
		t.Fatal("expected a valid entry after reload")
	}
	if entry.AssetID != "sodium" || entry.Data.VersionID != "abc" {
		t.Errorf("entry mutated in round trip: %+v", entry)
	}
	if entry.UpdateTime == 0 {
		t.Error("update time was not set")
	}
}

// TestCheckAssetHashMismatch invalidates when the definition changed.
func TestCheckAssetHashMismatch(t *testing.T) {
	store, root := setupStore(t)
	writeAssetFile(t, root, "mods/sodium.jar")
	store.StoreAsset("sodium", "hash1", Record{Type: "modrinth", Files: []string{"mods/sodium.jar"}})

	if store.CheckAsset("sodium", "hash2") != nil {
		t.Fatal("entry with a stale hash must be invalid")
	}
	// The entry and its files are gone.
	if store.CheckAsset("sodium", "hash1") != nil {
		t.Error("invalidated entry must not come back")
	}
	if _, err := os.Stat(filepath.Join(root, "mods/sodium.jar")); !os.IsNotExist(err) {
		t.Error("backing file of an invalidated entry must be deleted")
	}
}

// TestCheckAssetMissingFiles invalidates when a backing file was
// deleted, even with a matching hash.
func TestCheckAssetMissingFiles(t *testing.T) {
	store, root := setupStore(t)
	writeAssetFile(t, root, "mods/sodium.jar")
	store.StoreAsset("sodium", "hash1", Record{Type: "modrinth", Files: []string{"mods/sodium.jar"}})

	if err := os.Remove(filepath.Join(root, "mods/sodium.jar")); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}
	if store.CheckAsset("sodium", "hash1") != nil {
		t.Error("entry with missing files must be invalid")
	}
}

// TestPrune discards entries whose asset left the manifest.
func TestPrune(t *testing.T) {
	store, root := setupStore(t)
	writeAssetFile(t, root, "mods/a.jar")
	writeAssetFile(t, root, "mods/b.jar")
	store.StoreAsset("a", "ha", Record{Type: "modrinth", Files: []string{"mods/a.jar"}})
	store.StoreAsset("b", "hb", Record{Type: "modrinth", Files: []string{"mods/b.jar"}})

	store.Prune(map[string]struct{}{"a": {}})

	if store.CheckAsset("a", "ha") == nil {
		t.Error("entry still in the manifest must survive pruning")
	}
	if _, ok := store.Entries()["b"]; ok {
		t.Error("removed asset must be pruned")
	}
	if _, err := os.Stat(filepath.Join(root, "mods/b.jar")); !os.IsNotExist(err) {
		t.Error("pruned entry's files must be deleted")
	}
}

// TestLoadResets covers the whole-document reset conditions.
func TestLoadResets(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "cache.json")

	build := func(gameVersion, folder string) {
		t.Helper()
		doc := newDocument("default", gameVersion, folder)
		doc.Assets["a"] = &AssetEntry{AssetID: "a", AssetHash: "h", Data: Record{Type: "url"}}
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
	}

	load := func() *Store {
		t.Helper()
		store, err := NewStore(path, root, "default", "1.21", testLogger())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		store.Load()
		return store
	}

	build("1.21", root)
	if len(load().Entries()) != 1 {
		t.Fatal("matching document must load intact")
	}

	build("1.20", root)
	if len(load().Entries()) != 0 {
		t.Error("game version mismatch must reset the document")
	}

	build("1.21", filepath.Join(root, "elsewhere"))
	if len(load().Entries()) != 0 {
		t.Error("moved install root must reset the document")
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if len(load().Entries()) != 0 {
		t.Error("unparsable document must reset")
	}
}

// TestLoadRecoversSingleEntry drops one malformed entry without losing
// the rest.
func TestLoadRecoversSingleEntry(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "cache.json")

	raw := map[string]interface{}{
		"version":       DocumentVersion,
		"mc_version":    "1.21",
		"server_folder": root,
		"assets": map[string]interface{}{
			"good": map[string]interface{}{
				"asset_id":    "good",
				"asset_hash":  "h",
				"update_time": 1,
				"data":        map[string]interface{}{"type": "url", "files": []string{}},
			},
			"bad": "not an entry",
		},
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	store, err := NewStore(path, root, "default", "1.21", testLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	store.Load()

	if _, ok := store.Entries()["good"]; !ok {
		t.Error("intact entry must survive a malformed sibling")
	}
	if _, ok := store.Entries()["bad"]; ok {
		t.Error("malformed entry must be dropped")
	}
}

// TestSaveDirtyGate writes only when something changed.
func TestSaveDirtyGate(t *testing.T) {
	store, root := setupStore(t)
	path := filepath.Join(root, "cache.json")

	if err := store.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("clean store must not write a file")
	}

	store.StoreAsset("a", "h", Record{Type: "url"})
	if err := store.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("dirty save wrote nothing: %v", err)
	}

	// A second save with no changes must be a no-op.
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("save after a clean save must not rewrite the file")
	}
}

// TestCore covers the core entry lifecycle including the type switch.
func TestCore(t *testing.T) {
	store, root := setupStore(t)
	writeAssetFile(t, root, "paper.jar")

	store.StoreCore("vh1", Record{Type: "paper", Files: []string{"paper.jar"}, BuildNumber: 100})

	if store.CheckCore("paper", "vh1") == nil {
		t.Fatal("matching core entry must be valid")
	}
	// Floating selectors pass an empty hash; the stored one is ignored.
	if store.CheckCore("paper", "") == nil {
		t.Fatal("empty version hash must not invalidate")
	}
	if store.CheckCore("purpur", "vh1") != nil {
		t.Error("core type switch must invalidate")
	}
	if store.Core() != nil {
		t.Error("invalidated core entry must be removed")
	}

	writeAssetFile(t, root, "paper.jar")
	store.StoreCore("vh1", Record{Type: "paper", Files: []string{"paper.jar"}})
	if store.CheckCore("paper", "vh2") != nil {
		t.Error("pinned build change must invalidate")
	}
}
