package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cjdb-export/internal/tileindex"
)

var exportBBoxCmd = &cobra.Command{
	Use:   "bbox <minx> <miny> <maxx> <maxy>",
	Short: "Export the features intersecting a bounding box",
	Args:  cobra.ExactArgs(4),
	RunE:  runExportBBox,
}

func init() {
	exportCmd.AddCommand(exportBBoxCmd)
}

func runExportBBox(cmd *cobra.Command, args []string) error {
	coords := make([]float64, 4)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return eris.Wrapf(err, "bbox coordinate %q", a)
		}
		coords[i] = v
	}

	extent, err := tileindex.FromBBox(coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return err
	}
	return runExtentExport(cmd, extent)
}
