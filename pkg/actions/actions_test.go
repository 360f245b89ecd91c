package actions

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/providers"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

func testEnv(root string) *providers.Env {
	return &providers.Env{
		GameVersion: "1.21",
		Profile:     "default",
		ServerRoot:  root,
		Log:         telemetry.NewLogger(telemetry.DefaultConfig(false)),
	}
}

// writeZip creates a zip archive with the given entry names.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to add entry: %v", err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
}

func urlAsset(actions ...manifest.ActionSpec) *manifest.DirectURLAsset {
	return &manifest.DirectURLAsset{
		AssetCommon: manifest.AssetCommon{
			AssetID: "test-asset",
			Caching: true,
			Actions: actions,
		},
		URL: "https://example.org/download.zip",
	}
}

// TestRenameThenUnzip proves a rename updates the primary file so a
// following unzip operates on the renamed archive.
func TestRenameThenUnzip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "download.zip")
	writeZip(t, src, map[string]string{"inner/config.yml": "a: 1"})

	a := urlAsset(
		manifest.ActionSpec{Action: &manifest.RenameAction{To: "renamed.zip"}},
		manifest.ActionSpec{Action: &manifest.UnzipAction{}},
	)
	dl := &providers.Download{Files: []string{src}}

	env := testEnv(root)
	p := NewProcessor(env.Log)
	if failed := p.Run(env, a, dl); failed != 0 {
		t.Fatalf("%d action(s) failed", failed)
	}

	renamed := filepath.Join(root, "renamed.zip")
	if _, err := os.Stat(renamed); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("original file must be gone after rename")
	}
	if _, err := os.Stat(filepath.Join(root, "inner", "config.yml")); err != nil {
		t.Errorf("unzip did not run on the renamed file: %v", err)
	}

	primary, err := dl.Primary()
	if err != nil {
		t.Fatalf("no primary after pipeline: %v", err)
	}
	if primary != renamed {
		t.Errorf("primary = %q, want %q", primary, renamed)
	}
}

// TestRenameTemplate renders the target name from the download result.
func TestRenameTemplate(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "core.jar")
	if err := os.WriteFile(src, []byte("jar"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	a := urlAsset(manifest.ActionSpec{
		Action: &manifest.RenameAction{To: `server-${{env.mc_version}}.jar`},
	})
	dl := &providers.Download{Files: []string{src}}

	env := testEnv(root)
	if failed := NewProcessor(env.Log).Run(env, a, dl); failed != 0 {
		t.Fatalf("%d action(s) failed", failed)
	}
	want := filepath.Join(root, "server-1.21.jar")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("templated rename target missing: %v", err)
	}
}

// TestActionGate skips gated-off actions and runs the rest.
func TestActionGate(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jar")
	if err := os.WriteFile(src, []byte("jar"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	skipped := &manifest.RenameAction{To: "never.jar"}
	skipped.If = "1 == 2"
	applied := &manifest.RenameAction{To: "final.jar"}
	applied.If = "1 == 1"

	a := urlAsset(
		manifest.ActionSpec{Action: skipped},
		manifest.ActionSpec{Action: applied},
	)
	dl := &providers.Download{Files: []string{src}}

	env := testEnv(root)
	if failed := NewProcessor(env.Log).Run(env, a, dl); failed != 0 {
		t.Fatalf("%d action(s) failed", failed)
	}
	if _, err := os.Stat(filepath.Join(root, "never.jar")); !os.IsNotExist(err) {
		t.Error("gated-off action still ran")
	}
	if _, err := os.Stat(filepath.Join(root, "final.jar")); err != nil {
		t.Errorf("action after a gated-off sibling did not run: %v", err)
	}
}

// TestActionFailureContinues runs the remaining actions after one
// fails.
func TestActionFailureContinues(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jar")
	if err := os.WriteFile(src, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	a := urlAsset(
		// Unzipping a non-archive fails.
		manifest.ActionSpec{Action: &manifest.UnzipAction{}},
		manifest.ActionSpec{Action: &manifest.RenameAction{To: "after.jar"}},
	)
	dl := &providers.Download{Files: []string{src}}

	env := testEnv(root)
	failed := NewProcessor(env.Log).Run(env, a, dl)
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if _, err := os.Stat(filepath.Join(root, "after.jar")); err != nil {
		t.Errorf("sibling after a failed action did not run: %v", err)
	}
}

// TestDummyAction evaluates its expression against the bindings.
func TestDummyAction(t *testing.T) {
	root := t.TempDir()
	a := urlAsset(manifest.ActionSpec{
		Action: &manifest.DummyAction{Expr: `data.primary + " / " + asset.url`},
	})
	dl := &providers.Download{Files: []string{filepath.Join(root, "x.jar")}}

	env := testEnv(root)
	if failed := NewProcessor(env.Log).Run(env, a, dl); failed != 0 {
		t.Errorf("%d action(s) failed", failed)
	}

	// A broken expression fails the action but not the pipeline.
	b := urlAsset(manifest.ActionSpec{
		Action: &manifest.DummyAction{Expr: "data.unknown_field"},
	})
	if failed := NewProcessor(env.Log).Run(env, b, dl); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

// TestGateTruthiness exercises the permissive coercion on gate results.
func TestGateTruthiness(t *testing.T) {
	env := testEnv(t.TempDir())
	p := NewProcessor(env.Log)
	a := urlAsset()
	b := GateBindings(env, a)

	tests := []struct {
		src  string
		want bool
	}{
		{"", true},
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{`"true"`, true},
		{`"TRUE"`, true},
		{`"yes"`, false},
		{"asset", true},       // map defaults to true with a warning
		{"broken ===", false}, // evaluator fault reads as false
	}
	for _, tt := range tests {
		if got := p.EvalGate(tt.src, b, env.Log); got != tt.want {
			t.Errorf("EvalGate(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

// TestProfileBinding exposes the active profile both as env.profile and
// as the bare profile symbol.
func TestProfileBinding(t *testing.T) {
	env := testEnv(t.TempDir())
	env.Profile = "prod"
	p := NewProcessor(env.Log)
	b := GateBindings(env, urlAsset())

	for _, src := range []string{`profile == "prod"`, `env.profile == "prod"`} {
		if !p.EvalGate(src, b, env.Log) {
			t.Errorf("EvalGate(%q) = false, want true", src)
		}
	}
}
