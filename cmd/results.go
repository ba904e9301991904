package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/legal-analyzer/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored analysis results",
	Long:  "Commands for listing past analyses and viewing their results and audit trails.",
}

// -- results list --

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored analyses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		summaries, err := st.ListAnalyses(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "results list")
		}

		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No analyses found.")
			return nil
		}

		formatAnalysisList(os.Stdout, summaries)
		return nil
	},
}

// -- results show --

var resultsShowCmd = &cobra.Command{
	Use:   "show <analysis-id>",
	Short: "Show the full verified analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		analysis, err := st.GetAnalysis(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "results show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	},
}

// -- results audit --

var resultsAuditCmd = &cobra.Command{
	Use:   "audit <analysis-id>",
	Short: "Show the audit trail for an analysis",
	Long:  "Prints the full audit trail: stage snapshots, detected hallucinations, corrections, and confidence changes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		trail, err := st.GetAuditTrail(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "results audit")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trail)
	},
}

func init() {
	resultsListCmd.Flags().Int("limit", 50, "max number of analyses to display")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsAuditCmd)
	rootCmd.AddCommand(resultsCmd)
}

// formatAnalysisList writes a tabular list of analyses to w.
func formatAnalysisList(out io.Writer, summaries []store.AnalysisSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDOCUMENT\tTYPE\tCONFIDENCE\tHALLUCINATIONS\tANALYZED")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t----------\t--------------\t--------")

	for _, s := range summaries {
		doc := s.Filename
		if doc == "" {
			doc = s.DocumentID
		}
		if len(doc) > 30 {
			doc = doc[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(s.AnalysisID),
			doc,
			s.DocumentType,
			s.OverallConfidenceScore,
			s.HallucinationsDetected,
			s.AnalyzedAt.Format("2006-01-02 15:04"),
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
