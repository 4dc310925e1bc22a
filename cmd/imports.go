package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/store"
)

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List recent import runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "imports")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		publisher, _ := cmd.Flags().GetString("publisher")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		imports, err := store.NewImportLog(st.Pool()).List(ctx, publisher, limit)
		if err != nil {
			return eris.Wrap(err, "imports list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(imports)
		}
		if len(imports) == 0 {
			fmt.Fprintln(os.Stderr, "No imports found.")
			return nil
		}
		formatImportsList(os.Stdout, imports)
		return nil
	},
}

func init() {
	importsCmd.Flags().String("publisher", "", "filter by publisher id")
	importsCmd.Flags().Int("limit", 50, "max number of imports to display")
	importsCmd.Flags().Bool("json", false, "print the records as JSON")
	rootCmd.AddCommand(importsCmd)
}

// formatImportsList writes a tabular list of imports to w.
func formatImportsList(out io.Writer, imports []model.Import) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPUBLISHER\tSTATUS\tSTARTED\tDURATION\tRECEIVED\tCREATED\tUPDATED\tDELETED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t-------\t--------\t--------\t-------\t-------\t-------\t-----")

	for _, imp := range imports {
		dur := "-"
		if imp.FinishedAt != nil {
			dur = imp.FinishedAt.Sub(imp.StartedAt).Round(time.Second).String()
		}

		errMsg := imp.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(imp.ID),
			imp.PublisherID,
			imp.Status,
			imp.StartedAt.Format("2006-01-02 15:04"),
			dur,
			imp.Counts.Received,
			imp.Counts.Created,
			imp.Counts.Updated,
			imp.Counts.Deleted,
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
