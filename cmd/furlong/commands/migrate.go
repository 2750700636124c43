package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := furlong.LoadConfig(home)
			if err != nil {
				return err
			}
			// db.New migrates on open.
			dbConn, err := db.New(cfg.Path(cfg.Database))
			if err != nil {
				return err
			}
			defer dbConn.Close()

			version, err := db.Version(dbConn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", cfg.Path(cfg.Database), version)
			return nil
		},
	}
}
