package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"snipcast/internal/config"
	"snipcast/internal/delivery"
	"snipcast/internal/scheduler"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or check the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()

		out, err := config.MarshalYAML(config.Redacted(e.cfg))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration, schedules and delivery adapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()

		if err := scheduler.New(e.log).Validate(scheduledJobs(e.cfg, nil, nil)); err != nil {
			return fmt.Errorf("schedules: %w", err)
		}
		out := cmd.OutOrStdout()
		names := e.cfg.StreamNames()
		if len(names) == 0 {
			names = []string{""}
		}
		for _, name := range names {
			st, err := e.cfg.ResolveStream(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "stream %s: source=%s history=%s batch=%d schedule=%s\n",
				displayName(st.Name), st.Source, st.History, st.BatchSize, orDash(st.Schedule))
		}
		senders := delivery.Build(e.cfg.Delivery, e.log)
		fmt.Fprintf(out, "adapters: %d\n", len(senders))
		for _, s := range senders {
			fmt.Fprintf(out, "  - %s\n", s.Name())
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
