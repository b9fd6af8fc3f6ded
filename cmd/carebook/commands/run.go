package commands

import (
	"context"
	"errors"
	"log/slog"

	"carebook/internal/components/chrono"
	"carebook/internal/components/runlock"
	"carebook/internal/pipeline"
	"carebook/internal/portal"

	"github.com/spf13/cobra"
)

type runFlags struct {
	window  pipeline.WindowFlags
	service string
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().BoolVarP(&flags.window.All, "all", "a", false, "Cover every date.")
	cmd.Flags().IntVarP(&flags.window.Days, "days", "d", 0, "Cover today and the N days before it.")
	cmd.Flags().StringSliceVarP(&flags.window.Range, "range", "r", nil, "Cover the dates between two YYYY-MM-DD dates, e.g. --range 2023-11-01,2023-11-30.")
	cmd.Flags().StringVarP(&flags.service, "service", "s", "", "Only the service whose name matches best.")
}

var (
	runOptions runFlags
	runPhases  struct {
		fetch    bool
		download bool
		render   bool
	}
)

func init() {
	addRunFlags(runCmd, &runOptions)
	runCmd.Flags().BoolVarP(&runPhases.fetch, "fetch", "f", false, "Run the fetch phase.")
	runCmd.Flags().BoolVar(&runPhases.download, "download", false, "Run the download phase.")
	runCmd.Flags().BoolVarP(&runPhases.render, "render", "m", false, "Run the render phase.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--fetch] [--download] [--render] [--all | --days N | --range FROM,TO]",
	Short: "Fetches new records, downloads their attachments and compiles the notebook. Without a phase flag every phase runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var phases []pipeline.Phase
		if runPhases.fetch {
			phases = append(phases, pipeline.PhaseFetch)
		}
		if runPhases.download {
			phases = append(phases, pipeline.PhaseDownload)
		}
		if runPhases.render {
			phases = append(phases, pipeline.PhaseRender)
		}
		return runOnce(cmd.Context(), phases, runOptions)
	},
}

func needsPortal(phases []pipeline.Phase) bool {
	if len(phases) == 0 {
		return true
	}
	for _, phase := range phases {
		if phase != pipeline.PhaseRender {
			return true
		}
	}
	return false
}

// runOnce opens everything a run needs, holds the run lock for its duration and runs
// `phases` (every phase when empty).
func runOnce(ctx context.Context, phases []pipeline.Phase, flags runFlags) error {
	a, err := openApp(config)
	if err != nil {
		return err
	}
	defer a.Close()

	lock, err := runlock.Acquire(config.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		err := lock.Release()
		if err != nil {
			slog.Warn("failed to release run lock", "err", err.Error())
		}
	}()

	window, err := pipeline.ResolveWindow(ctx, flags.window, a.state, chrono.Today(a.time), config.DefaultDays)
	if err != nil {
		return err
	}
	children, err := config.NotebookChildren()
	if err != nil {
		return err
	}
	opts := pipeline.Options{
		Window:    window,
		Service:   flags.service,
		OutputDir: config.OutputDir,
		MaxPages:  config.MaxPages,
		Children:  children,
		PostBuild: config.PostBuild,
	}

	var p pipeline.Pipeline
	if needsPortal(phases) {
		client, err := a.session(ctx)
		if err != nil {
			return err
		}
		p = pipeline.New(client, portal.NewDirectory(client), a.store, a.state, a.renderer, opts, a.time, a.tel)
	} else {
		p = pipeline.New(nil, nil, a.store, a.state, a.renderer, opts, a.time, a.tel)
	}

	slog.Info("running", "window", window.String(), "phases", phases)
	err = p.Run(ctx, phases)
	if errors.Is(err, context.Canceled) {
		slog.Info("interrupted")
	}
	return err
}
