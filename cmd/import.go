package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mission-sync/internal/importer"
)

var importPublisher string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import mission feeds for one or all active publishers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, "import")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		deps, err := buildDeps(cfg, st, prometheus.NewRegistry())
		if err != nil {
			return err
		}

		res, err := importer.New(deps, importOptions(cfg)).Run(ctx, importPublisher)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		formatRunResult(os.Stdout, res)
		if !res.Success {
			return eris.New(res.Message)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPublisher, "publisher", "", "import only this publisher id")
	rootCmd.AddCommand(importCmd)
}

// formatRunResult writes one row per publisher run to w.
func formatRunResult(out io.Writer, res *importer.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PUBLISHER\tSTATUS\tRECEIVED\tCREATED\tUPDATED\tDELETED\tREFUSED\tFAILED\tDURATION\tERROR")
	for _, p := range res.Publishers {
		name := p.Name
		if name == "" {
			name = p.PublisherID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			name,
			p.Status,
			p.Counts.Received,
			p.Counts.Created,
			p.Counts.Updated,
			p.Counts.Deleted,
			p.Counts.Refused,
			p.Counts.Failed,
			p.Duration.Round(time.Second),
			p.Error,
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out, res.Message)
}
