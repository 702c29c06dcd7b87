package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/fetcher"
	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/store"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Import and manage candidate sites",
}

var sitesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import candidate sites from a spreadsheet",
	Long:  "Reads an XLSX sheet with name, latitude and longitude columns (plus optional ref, address, area and land use) and upserts the sites by external reference. Existing sites keep their status.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return eris.New("sites import: --file is required")
		}
		sheet, _ := cmd.Flags().GetString("sheet")
		skip, _ := cmd.Flags().GetInt("skip-rows")

		sites, err := fetcher.ReadSites(path, fetcher.XLSXOptions{SheetName: sheet, SkipRows: skip})
		if err != nil {
			return eris.Wrap(err, "sites import")
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertSites(ctx, sites)
		if err != nil {
			return eris.Wrap(err, "sites import")
		}
		zap.L().Info("sites imported", zap.String("file", path), zap.Int("read", len(sites)), zap.Int64("upserted", n))
		fmt.Fprintf(os.Stdout, "Imported %d sites from %s\n", n, path)
		return nil
	},
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sites",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		if status != "" && !model.SiteStatus(status).Valid() {
			return eris.Errorf("sites list: unknown status %q", status)
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		sites, err := env.Store.ListSites(ctx, store.SiteFilter{
			Status: model.SiteStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "sites list")
		}
		if len(sites) == 0 {
			fmt.Fprintln(os.Stderr, "No sites found.")
			return nil
		}
		formatSitesList(os.Stdout, sites)
		return nil
	},
}

var sitesStatusCmd = &cobra.Command{
	Use:   "status <site-id> <approved|rejected>",
	Short: "Record a review decision for an evaluated site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		next := model.SiteStatus(args[1])
		if next != model.SiteStatusApproved && next != model.SiteStatusRejected {
			return eris.Errorf("sites status: status must be approved or rejected, got %q", args[1])
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.UpdateSiteStatus(ctx, args[0], next); err != nil {
			return eris.Wrap(err, "sites status")
		}
		fmt.Fprintf(os.Stdout, "Site %s is now %s\n", args[0], next)
		return nil
	},
}

func formatSitesList(out io.Writer, sites []model.Site) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREF\tNAME\tSTATUS\tLAT\tLNG\tAREA_SQM\tLAND_USE")
	for _, s := range sites {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.6f\t%.6f\t%.0f\t%s\n",
			s.ID, s.ExternalRef, truncate(s.Name, 40), s.Status, s.Latitude, s.Longitude, s.AreaSqm, s.LandUse)
	}
	_ = w.Flush()
}

func init() {
	sitesImportCmd.Flags().String("file", "", "XLSX file of candidate sites")
	sitesImportCmd.Flags().String("sheet", "", "sheet name (default first sheet)")
	sitesImportCmd.Flags().Int("skip-rows", 0, "rows to skip before the header")

	sitesListCmd.Flags().String("status", "", "filter by status (pending, evaluated, approved, rejected)")
	sitesListCmd.Flags().Int("limit", 100, "max number of sites to display")
	sitesListCmd.Flags().Int("offset", 0, "number of sites to skip")

	sitesCmd.AddCommand(sitesImportCmd)
	sitesCmd.AddCommand(sitesListCmd)
	sitesCmd.AddCommand(sitesStatusCmd)
	rootCmd.AddCommand(sitesCmd)
}
