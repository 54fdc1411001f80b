package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cjdb-export/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cjdb-export",
	Short: "Export 3D city models from PostGIS to CityJSON",
	Long:  "Reads mapped feature tables from a PostGIS database, assembles CityJSON boundaries with semantic surfaces, and writes whole-area, per-tile or line-delimited feature output.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
