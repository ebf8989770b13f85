package cli

import (
	"github.com/spf13/cobra"

	"snipcast/internal/pipeline"
	logx "snipcast/pkg/logx"
)

var (
	runStream string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Select, commit and deliver one batch for a stream",
	Long: `Run reads the stream's source, picks a batch that avoids snippets sent
within the recency window, records it in history and delivers it to every
configured adapter. The selection is always printed to stdout.

Delivery failures are logged but do not fail the command: history is
committed before anything is sent.`,
	Example: `  snipcast run
  snipcast run --stream deen
  snipcast run --dry-run -c snipcast.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()

		st, err := e.cfg.ResolveStream(runStream)
		if err != nil {
			return err
		}
		runner := newRunner(e.cfg, e.log, pipeline.WithOutput(cmd.OutOrStdout()))
		oc, err := runner.Run(cmd.Context(), st, runDryRun)
		if err != nil {
			return err
		}
		if oc.Shortfall > 0 {
			e.log.Warn("batch smaller than requested", logx.Int("requested", st.BatchSize), logx.Int("shortfall", oc.Shortfall))
		}
		if err := oc.Report.Err(); err != nil {
			e.log.Error("delivery incomplete", logx.String("run_id", oc.RunID), logx.Err(err))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runStream, "stream", "s", "", "stream to run (default: config stream or $STREAM_PREFIX)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the selection without touching history or delivering")
	rootCmd.AddCommand(runCmd)
}
