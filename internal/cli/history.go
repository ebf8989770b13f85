package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyStream string
	historyAll    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or prune a stream's sent history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List snippets sent within the recency window",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()

		st, err := e.cfg.ResolveStream(historyStream)
		if err != nil {
			return err
		}
		view, err := newRunner(e.cfg, e.log).History(cmd.Context(), st)
		if err != nil {
			return err
		}

		rec := view.Pruned
		if historyAll {
			rec = view.Stored
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "stream:        %s\n", displayName(st.Name))
		fmt.Fprintf(out, "history:       %s\n", st.History)
		fmt.Fprintf(out, "last category: %s\n", orDash(rec.LastCategory))
		fmt.Fprintf(out, "entries:       %d recent, %d stale\n\n", len(view.Pruned.Entries), view.Stale())

		type row struct {
			text string
			at   time.Time
		}
		rows := make([]row, 0, len(rec.Entries))
		for text, at := range rec.Entries {
			rows = append(rows, row{text: text, at: at})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].at.After(rows[j].at) })

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SENT\tSNIPPET")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\n", r.at.Local().Format("2006-01-02 15:04"), preview(r.text, 72))
		}
		return tw.Flush()
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop entries older than the recency window",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()

		st, err := e.cfg.ResolveStream(historyStream)
		if err != nil {
			return err
		}
		removed, err := newRunner(e.cfg, e.log).PruneHistory(cmd.Context(), st)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries from %s\n", removed, displayName(st.Name))
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyStream, "stream", "s", "", "stream to inspect")
	historyShowCmd.Flags().BoolVar(&historyAll, "all", false, "include entries outside the recency window")
	historyCmd.AddCommand(historyShowCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func displayName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// preview returns the first line of s, cut to max runes.
func preview(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
