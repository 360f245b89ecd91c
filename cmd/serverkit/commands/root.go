package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/serverkit/serverkit/pkg/cache"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/fetch"
	"github.com/serverkit/serverkit/pkg/installer"
	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/providers"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

// cacheFileName is the cache document's name inside the server folder.
const cacheFileName = ".serverkit-cache.json"

var (
	// Global flags
	serverFolder string
	manifestPath string
	profile      string
	githubToken  string
	debug        bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serverkit",
		Short: "Serverkit - Game Server Asset Installer",
		Long: `Serverkit installs and updates third-party server assets (mods,
plugins, datapacks and the server core itself) from a declarative
manifest, caching completed installs so unchanged assets are never
downloaded twice.

Sources:
  - Modrinth projects
  - GitHub releases and Actions artifacts
  - Jenkins build artifacts
  - Paper and Purpur server builds
  - Direct URLs`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&serverFolder, "folder", "f", ".", "server folder to install into")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file (default: manifest.{yaml,yml,json} in the server folder)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "default", "install profile name")
	rootCmd.PersistentFlags().StringVar(&githubToken, "github-token", "", "github bearer token (default: $SERVERKIT_GITHUB_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable verbose diagnostics")

	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newUpdateCommand())

	return rootCmd
}

// run bundles everything one command invocation needs.
type run struct {
	Log       *telemetry.Logger
	Manifest  *manifest.Manifest
	Installer *installer.Installer
	Fetch     *fetch.Fetcher
	Path      string
}

// Close releases per-run resources.
func (r *run) Close() {
	r.Fetch.ClearTemp()
}

// setup resolves the flags into a ready installer: manifest loaded,
// cache store created, providers registered.
func setup() (*run, error) {
	log := telemetry.NewLogger(telemetry.DefaultConfig(debug))

	root, err := filepath.Abs(serverFolder)
	if err != nil {
		return nil, fmt.Errorf("resolving server folder %s: %w", serverFolder, err)
	}

	path := manifestPath
	if path == "" {
		path, err = manifest.Discover(root)
	} else {
		err = manifest.CheckPath(path)
	}
	if err != nil {
		return nil, err
	}

	schema := manifest.NewSchema(log)
	m, err := schema.Load(path)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(filepath.Join(root, cacheFileName), root, profile, m.GameVersion, log)
	if err != nil {
		return nil, err
	}

	token := githubToken
	if token == "" {
		token = os.Getenv("SERVERKIT_GITHUB_TOKEN")
	}
	fetcher := fetch.New(token, log)

	env := &providers.Env{
		GameVersion: m.GameVersion,
		Profile:     profile,
		ServerRoot:  root,
		Fetch:       fetcher,
		Log:         log,
		Debug:       debug,
	}
	regs := providers.NewRegistries()
	providers.RegisterAll(regs)

	return &run{
		Log:       log,
		Manifest:  m,
		Installer: installer.New(m, store, regs, env),
		Fetch:     fetcher,
		Path:      path,
	}, nil
}

// reportError prints err the way the user should see it: friendly
// faults keep their message, everything else the full chain.
func reportError(log *telemetry.Logger, err error) {
	if debug {
		log.Errorf("%+v", err)
		return
	}
	log.Error(faults.UserMessage(err))
}
