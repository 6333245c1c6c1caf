package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/triad/pkg/runstore"
	"github.com/harun/triad/internal/workflow"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Long:  `List the runs recorded in the storage directory, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var showCmd = &cobra.Command{
	Use:   "show <run-number>",
	Short: "Print the task record of a run",
	Long:  `Render the task record of a run from its latest state snapshot.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := runstore.Open(runstore.Config{DBPath: workflow.RunDBPath(cfg.Storage.DataDir)})
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(commandContext(cmd), runsLimit)
	if err != nil {
		return err
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func printRuns(out io.Writer, runs []runstore.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tID\tSTATUS\tOUTCOME\tTURNS\tRESUMES\tSTARTED\tDURATION\tREASON")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.Number,
			dash(r.RunID),
			r.Status,
			dash(r.Outcome),
			r.Turns,
			r.Resumes,
			formatTime(r.StartedAt),
			formatDuration(r.StartedAt, r.EndedAt),
			dash(truncate(r.Reason, 60)),
		)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid run number %q", args[0])
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	record, err := sess.service.Show(commandContext(cmd), n)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), record)
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}
	d := end.Sub(*start).Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
