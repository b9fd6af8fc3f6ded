package notebook

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"carebook/internal/components/telemetry"
)

const report_hook_run = "hook.run"

// RunHook runs the post build command in `dir`, a non-zero exit is an error carrying
// the command's output.
func RunHook(ctx context.Context, argv []string, dir string, tel telemetry.API) error {
	if len(argv) == 0 {
		return nil
	}
	tel = telemetry.NewScopedAPI("notebook", tel)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	tel.ReportDebug("running post build", argv)
	err := cmd.Run()
	if err != nil {
		err = fmt.Errorf("post build %v: %w\n%s", argv, err, output.String())
		tel.ReportBroken(report_hook_run, err)
		return err
	}
	tel.ReportDebug("post build finished", output.String())
	return nil
}
