package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/screening"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Filter, sort and page sites by their current evaluation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		c, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		statsOnly, _ := cmd.Flags().GetBool("stats")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if statsOnly {
			stats, err := env.Service.GetScreeningStats(ctx, c)
			if err != nil {
				return eris.Wrap(err, "screen")
			}
			return writeJSON(os.Stdout, stats)
		}

		res, err := env.Service.ScreenSites(ctx, c)
		if err != nil {
			return eris.Wrap(err, "screen")
		}
		if asJSON {
			return writeJSON(os.Stdout, res)
		}
		if len(res.Results) == 0 {
			fmt.Fprintln(os.Stderr, "No matching sites.")
			return nil
		}
		formatScreening(os.Stdout, res)
		return nil
	},
}

// criteriaFromFlags maps set flags onto screening criteria. Unset flags
// leave their filter open.
func criteriaFromFlags(cmd *cobra.Command) (screening.Criteria, error) {
	f := cmd.Flags()
	var c screening.Criteria

	optFloat := func(name string) (*float64, error) {
		if !f.Changed(name) {
			return nil, nil
		}
		v, err := f.GetFloat64(name)
		if err != nil {
			return nil, eris.Wrapf(err, "screen: flag --%s", name)
		}
		return &v, nil
	}

	var err error
	targets := []struct {
		name string
		dst  **float64
	}{
		{"min-score", &c.WeightedScore.Min},
		{"max-score", &c.WeightedScore.Max},
		{"min-grid", &c.MinGridScore},
		{"min-setback", &c.MinSetbackScore},
		{"min-road", &c.MinRoadScore},
		{"min-pole", &c.MinPoleScore},
		{"min-area", &c.Area.Min},
		{"max-area", &c.Area.Max},
		{"max-grid-distance", &c.MaxGridDistanceM},
	}
	for _, t := range targets {
		if *t.dst, err = optFloat(t.name); err != nil {
			return c, err
		}
	}

	recs, _ := f.GetStringSlice("recommendation")
	for _, r := range recs {
		c.Recommendations = append(c.Recommendations, model.Recommendation(r))
	}
	statuses, _ := f.GetStringSlice("status")
	for _, s := range statuses {
		c.Statuses = append(c.Statuses, model.SiteStatus(s))
	}
	c.LandUses, _ = f.GetStringSlice("land-use")
	c.Search, _ = f.GetString("search")

	if f.Changed("setback-violation") {
		v, _ := f.GetBool("setback-violation")
		c.SetbackViolation = &v
	}

	c.SortBy, _ = f.GetString("sort")
	c.Order, _ = f.GetString("order")
	c.Page, _ = f.GetInt("page")
	c.Limit, _ = f.GetInt("limit")
	return c, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatScreening writes a page of screening rows and a footer summary.
func formatScreening(out io.Writer, res *screening.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SITE_ID\tNAME\tSTATUS\tAREA_SQM\tWEIGHTED\tRECOMMENDATION\tEVALUATED")
	for _, r := range res.Results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%.1f\t%s\t%s\n",
			r.SiteID, truncate(r.SiteName, 40), r.SiteStatus, r.AreaSqm,
			r.WeightedScore, r.Recommendation, r.EvaluatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\npage %d/%d  matching %d of %d  avg score %.1f\n",
		res.Page, res.TotalPages, res.Stats.MatchingSites, res.Stats.TotalSites, res.Stats.AverageScore)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// addScreenFlags registers the criteria flags read by criteriaFromFlags.
func addScreenFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("min-score", 0, "minimum weighted score")
	f.Float64("max-score", 0, "maximum weighted score")
	f.Float64("min-grid", 0, "minimum grid score")
	f.Float64("min-setback", 0, "minimum setback score")
	f.Float64("min-road", 0, "minimum road score")
	f.Float64("min-pole", 0, "minimum pole score")
	f.Float64("min-area", 0, "minimum site area in square metres")
	f.Float64("max-area", 0, "maximum site area in square metres")
	f.Float64("max-grid-distance", 0, "maximum distance to the scored grid asset in metres")
	f.Bool("setback-violation", false, "only sites with (true) or without (false) a setback violation")
	f.StringSlice("recommendation", nil, "recommendation tiers to include (repeatable)")
	f.StringSlice("status", nil, "site statuses to include (repeatable)")
	f.StringSlice("land-use", nil, "land uses to include (repeatable)")
	f.String("search", "", "case-insensitive match on site name or address")
	f.String("sort", screening.SortWeightedScore, "sort column")
	f.String("order", screening.OrderDesc, "sort order (asc, desc)")
	f.Int("page", 1, "page number")
	f.Int("limit", 0, "rows per page (default from config)")
}

func init() {
	addScreenFlags(screenCmd)
	screenCmd.Flags().Bool("json", false, "print the full result as JSON")
	screenCmd.Flags().Bool("stats", false, "print only statistics over matching sites")

	rootCmd.AddCommand(screenCmd)
}
