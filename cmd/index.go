package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/cjdb-export/internal/tileindex"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the tile index",
	Long:  "Partitions the extent polygon into a regular grid, ranks the cells in Morton order and writes them to the tile index table.",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringP("extent", "e", "", "Extent polygon file (GeoJSON or shapefile)")
	indexCmd.Flags().Float64("width", 0, "Tile width in CRS units")
	indexCmd.Flags().Float64("height", 0, "Tile height in CRS units")
	indexCmd.Flags().Bool("drop", false, "Drop and recreate an existing tile index table")
	_ = indexCmd.MarkFlagRequired("extent")
	_ = indexCmd.MarkFlagRequired("width")
	_ = indexCmd.MarkFlagRequired("height")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extentPath, _ := cmd.Flags().GetString("extent")
	width, _ := cmd.Flags().GetFloat64("width")
	height, _ := cmd.Flags().GetFloat64("height")
	drop, _ := cmd.Flags().GetBool("drop")

	polygon, err := readExtentPolygon(extentPath)
	if err != nil {
		return err
	}

	cells, err := tileindex.BuildGrid(polygon, width, height)
	if err != nil {
		return err
	}
	cells = tileindex.IndexCells(cells)
	if len(cells) == 0 {
		return eris.New("extent produced no tiles")
	}
	zap.L().Info("grid built",
		zap.Int("tiles", len(cells)),
		zap.Float64("width", width),
		zap.Float64("height", height))

	pool, err := dbPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := tileindex.NewStore(pool, indexTable(), cfg.TileIndex.SRID)
	if err := store.Create(ctx, drop); err != nil {
		return err
	}
	if err := store.Insert(ctx, cells); err != nil {
		return err
	}
	if err := store.CreateSpatialIndex(ctx); err != nil {
		return err
	}

	fmt.Printf("Indexed %d tiles into %s\n", len(cells), store.Table().Qualified())
	return nil
}

// readExtentPolygon loads the extent polygon, dispatching on file extension.
func readExtentPolygon(path string) (*geom.Polygon, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return tileindex.ReadShapefilePolygon(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open extent %s", path)
	}
	defer f.Close()
	return tileindex.ReadGeoJSONPolygon(f)
}
