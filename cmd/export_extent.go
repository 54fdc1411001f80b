package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/cjdb-export/internal/tileindex"
)

var exportExtentCmd = &cobra.Command{
	Use:   "extent <polygon-file>",
	Short: "Export the features intersecting an extent polygon",
	Long:  "Reads the extent polygon from a GeoJSON or shapefile and exports every feature intersecting it.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportExtent,
}

func init() {
	exportCmd.AddCommand(exportExtentCmd)
}

func runExportExtent(cmd *cobra.Command, args []string) error {
	polygon, err := readExtentPolygon(args[0])
	if err != nil {
		return err
	}
	extent, err := tileindex.FromPolygon(polygon)
	if err != nil {
		return err
	}
	return runExtentExport(cmd, extent)
}
