package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/service"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate sites under the active parameter set",
	Long:  "Scores one or more sites against the grid, setback, road and pole layers and appends the results to each site's evaluation history.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		siteIDs, _ := cmd.Flags().GetStringSlice("site")
		status, _ := cmd.Flags().GetString("status")
		by, _ := cmd.Flags().GetString("by")
		limit, _ := cmd.Flags().GetInt("limit")

		if len(siteIDs) == 0 && status == "" {
			return eris.New("evaluate: provide --site or --status pending")
		}
		if status != "" && model.SiteStatus(status) != model.SiteStatusPending {
			return eris.Errorf("evaluate: only --status pending is supported, got %q", status)
		}

		env, err := initEnv(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		if status != "" {
			pending, err := env.Service.PendingSiteIDs(ctx, limit)
			if err != nil {
				return eris.Wrap(err, "evaluate")
			}
			siteIDs = append(siteIDs, pending...)
		}
		if len(siteIDs) == 0 {
			fmt.Fprintln(os.Stderr, "No sites to evaluate.")
			return nil
		}

		res, err := env.Service.EvaluateBatch(ctx, siteIDs, by)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}

		formatBatchResult(os.Stdout, res)
		if len(res.Failed) > 0 {
			return eris.Errorf("evaluate: %d of %d sites failed", len(res.Failed), len(siteIDs))
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the evaluation history of a site, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		siteID, _ := cmd.Flags().GetString("site")
		if siteID == "" {
			return eris.New("history: --site is required")
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Service.GetEvaluationHistory(ctx, siteID)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

func init() {
	evaluateCmd.Flags().StringSlice("site", nil, "site id to evaluate (repeatable)")
	evaluateCmd.Flags().String("status", "", "evaluate every site with this status (pending)")
	evaluateCmd.Flags().String("by", "cli", "recorded as evaluated_by")
	evaluateCmd.Flags().Int("limit", 500, "max sites selected by --status")

	historyCmd.Flags().String("site", "", "site id")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatBatchResult writes one row per evaluated site followed by failures.
func formatBatchResult(out io.Writer, res *service.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SITE\tGRID\tSETBACK\tROAD\tPOLE\tWEIGHTED\tRECOMMENDATION")
	for _, r := range res.Records {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%s\n",
			r.SiteID, r.GridScore, r.SetbackScore, r.RoadScore, r.PoleScore,
			r.WeightedScore, r.Recommendation)
	}
	_ = w.Flush()

	if len(res.Failed) == 0 {
		return
	}
	ids := make([]string, 0, len(res.Failed))
	for id := range res.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "FAILED:")
	for _, id := range ids {
		_, _ = fmt.Fprintf(out, "  %s: %s\n", id, res.Failed[id])
	}
}
