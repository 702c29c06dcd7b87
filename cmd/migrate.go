package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the site and feature tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		switch s := st.(type) {
		case *store.PostgresStore:
			if err := geospatial.Migrate(ctx, s.Pool()); err != nil {
				return eris.Wrap(err, "migrate features")
			}
		case *store.SQLiteStore:
			if err := geospatial.NewSQLiteStore(s.DB()).Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate features")
			}
		}

		zap.L().Info("migrations complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
