package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"carebook/internal/pipeline"
	"carebook/internal/record"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusRuns int

func init() {
	statusCmd.Flags().IntVarP(&statusRuns, "runs", "n", 10, "How many past runs to list.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the checkpoint, the recent runs and what the cache holds.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(config)
		if err != nil {
			fatal("failed to open state", err)
		}
		defer a.Close()

		err = printStatus(cmd.Context(), a)
		if err != nil {
			fatal("failed to read status", err)
		}
	},
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

func printStatus(ctx context.Context, a *app) error {
	checkpoint, ok, err := pipeline.Checkpoint(ctx, a.state)
	if err != nil {
		return err
	}
	loginID, _, err := a.state.Get(ctx, pipeline.LoginIDKey)
	if err != nil {
		return err
	}
	summary := newTable()
	checkpointText := "none"
	if ok {
		checkpointText = checkpoint.String()
	}
	summary.AppendRow(table.Row{"Checkpoint", checkpointText})
	summary.AppendRow(table.Row{"Login id", loginID})
	summary.AppendRow(table.Row{"Cache", a.config.DataDir})
	summary.AppendRow(table.Row{"Output", a.config.OutputDir})
	summary.Render()

	runs, err := a.state.LastRuns(ctx, statusRuns)
	if err != nil {
		return err
	}
	history := newTable()
	history.AppendHeader(table.Row{"Started", "Phase", "Window", "Took", "Result"})
	for _, run := range runs {
		took := "running"
		result := ""
		if !run.Finished.IsZero() {
			took = run.Finished.Sub(run.Started).Round(time.Second).String()
			result = "ok"
			if !run.OK {
				result = run.Error
			}
		}
		history.AppendRow(table.Row{
			run.Started.In(a.time.Location()).Format(time.DateTime),
			run.Phase,
			run.Window,
			took,
			result,
		})
	}
	history.Render()

	services, err := a.store.Services()
	if err != nil {
		return err
	}
	counts := newTable()
	header := table.Row{"Service"}
	for _, category := range record.Categories {
		if category.PerService() {
			header = append(header, string(category))
		}
	}
	counts.AppendHeader(header)
	for _, service := range services {
		row := table.Row{service}
		for _, category := range record.Categories {
			if !category.PerService() {
				continue
			}
			n, err := a.store.Count(category, service)
			if err != nil {
				return err
			}
			row = append(row, n)
		}
		counts.AppendRow(row)
	}
	handouts, err := a.store.Count(record.Handout, "")
	if err != nil {
		return err
	}
	counts.AppendFooter(table.Row{fmt.Sprintf("%d handouts", handouts)})
	counts.Render()
	return nil
}
