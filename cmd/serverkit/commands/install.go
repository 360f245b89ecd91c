package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/serverkit/serverkit/pkg/telemetry"
)

func newInstallCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install every asset declared in the manifest",
		Long: `Install the server core and every mod, plugin, datapack and custom
asset declared in the manifest. Assets with a valid cache entry are
skipped; a failing asset is logged and does not stop the rest.`,
		Example: `  # Install into the current directory
  serverkit install

  # Install into a specific server folder
  serverkit install -f /srv/minecraft

  # Reinstall automatically whenever the manifest changes
  serverkit install --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup()
			if err != nil {
				reportError(telemetry.NewLogger(telemetry.DefaultConfig(debug)), err)
				return err
			}
			defer r.Close()

			if err := r.Installer.Install(cmd.Context()); err != nil {
				reportError(r.Log, err)
				return err
			}
			if !watch {
				return nil
			}
			return watchManifest(cmd.Context(), r.Log, r.Path)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rerun the install whenever the manifest changes")

	return cmd
}

// watchManifest reruns the install pass whenever the manifest file
// changes. Editors replace files on save, so the parent directory is
// watched and events are debounced.
func watchManifest(ctx context.Context, log *telemetry.Logger, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	log.Infof("watching %s for changes", path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(500 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		case <-debounce:
			debounce = nil
			log.Info("manifest changed, reinstalling")
			// A fresh setup rereads the manifest and the cache.
			r, err := setup()
			if err != nil {
				reportError(log, err)
				continue
			}
			if err := r.Installer.Install(ctx); err != nil {
				reportError(r.Log, err)
			}
			r.Close()
		}
	}
}
