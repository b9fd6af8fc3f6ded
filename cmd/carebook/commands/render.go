package commands

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"carebook/internal/pipeline"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce is how long the cache has to stay quiet before a recompile.
const watchDebounce = 2 * time.Second

var (
	renderOptions runFlags
	renderWatch   bool

	downloadOptions runFlags
)

func init() {
	addRunFlags(renderCmd, &renderOptions)
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "Recompile whenever the cache changes.")
	rootCmd.AddCommand(renderCmd)

	addRunFlags(downloadCmd, &downloadOptions)
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download [--all | --days N | --range FROM,TO]",
	Short: "Downloads the attachments of cached records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), []pipeline.Phase{pipeline.PhaseDownload}, downloadOptions)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [--watch] [--all | --days N | --range FROM,TO]",
	Short: "Compiles the notebook from the cache without contacting the portal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		render := func() error {
			return runOnce(cmd.Context(), []pipeline.Phase{pipeline.PhaseRender}, renderOptions)
		}
		err := render()
		if err != nil || !renderWatch {
			return err
		}
		return watch(cmd.Context(), config.DataDir, render)
	},
}

// addTree watches `root` and every directory below it, fsnotify does not recurse.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

// watch calls `onChange` once the tree under `root` stops changing, until ctx is done.
func watch(ctx context.Context, root string, onChange func() error) error {
	err := os.MkdirAll(root, 0755)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	err = addTree(watcher, root)
	if err != nil {
		return err
	}
	slog.Info("watching for changes", "dir", root)

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					err = addTree(watcher, event.Name)
					if err != nil {
						slog.Warn("failed to watch new directory", "dir", event.Name, "err", err.Error())
					}
				}
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", err.Error())
		case <-debounce.C:
			slog.Info("cache changed, recompiling")
			err := onChange()
			if err != nil {
				slog.Error("recompile failed", "err", err.Error())
			}
		}
	}
}
