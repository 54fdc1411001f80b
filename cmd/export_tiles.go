package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cjdb-export/internal/db"
	"github.com/sells-group/cjdb-export/internal/export"
	"github.com/sells-group/cjdb-export/internal/tileindex"
)

var exportTilesCmd = &cobra.Command{
	Use:   "tiles <tile-id>...",
	Short: "Export tiles of the tile index",
	Long:  "Exports one CityJSON file per tile into the output directory. The tile id \"all\" selects every tile; --merge writes the selected tiles as a single document instead.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExportTiles,
}

func init() {
	exportTilesCmd.Flags().Bool("merge", false, "Write one merged document instead of per-tile files")
	exportTilesCmd.Flags().String("dir", "tiles", "Output directory for per-tile files")
	exportCmd.AddCommand(exportTilesCmd)
}

func runExportTiles(cmd *cobra.Command, args []string) error {
	merge, _ := cmd.Flags().GetBool("merge")
	dir, _ := cmd.Flags().GetString("dir")
	features, _ := cmd.Flags().GetBool("features")
	out, _ := cmd.Flags().GetString("out")

	if features && !merge {
		return eris.New("--features requires --merge for tile exports")
	}

	return executeExport(cmd, func(ctx context.Context, pool db.Pool, e *export.Exporter) (export.Summary, error) {
		tiles, err := resolveStore(pool).ResolveTiles(ctx, args)
		if err != nil {
			return export.Summary{}, err
		}

		if merge {
			w, closeFn, err := openOutput(out)
			if err != nil {
				return export.Summary{}, err
			}
			defer closeFn()

			extent := tileindex.FromTiles(tiles)
			summary, err := exportMerged(ctx, e, extent, features, w)
			if err != nil {
				return export.Summary{}, err
			}
			summary.Tiles = len(tiles)
			return summary, nil
		}

		return e.ExportTiles(ctx, tiles, dir)
	})
}

func exportMerged(ctx context.Context, e *export.Exporter, extent *tileindex.Extent, features bool, w io.Writer) (export.Summary, error) {
	if features {
		return e.ExportFeatures(ctx, extent, w)
	}
	return e.ExportDocument(ctx, extent, w)
}
