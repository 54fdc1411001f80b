package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/cjdb-export/internal/cityjson"
	"github.com/sells-group/cjdb-export/internal/config"
	"github.com/sells-group/cjdb-export/internal/db"
	"github.com/sells-group/cjdb-export/internal/export"
	"github.com/sells-group/cjdb-export/internal/journal"
	"github.com/sells-group/cjdb-export/internal/tileindex"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the whole database to one CityJSON document",
	Long:  "Exports every mapped feature table. Subcommands scope the export to a bounding box, an extent polygon or tiles of the tile index.",
	RunE:  runExportAll,
}

func init() {
	exportCmd.PersistentFlags().StringP("out", "o", "-", "Output file, - for stdout")
	exportCmd.PersistentFlags().Bool("features", false, "Write line-delimited CityJSONFeature records instead of one document")
	exportCmd.PersistentFlags().Int("jobs", 0, "Parallel tile workers (default from config)")
	exportCmd.PersistentFlags().String("mapping", "", "Feature mapping file (default from config)")
	rootCmd.AddCommand(exportCmd)
}

func runExportAll(cmd *cobra.Command, _ []string) error {
	return runExtentExport(cmd, nil)
}

// runExtentExport runs a whole-output export scoped by an optional extent,
// honoring the --features flag.
func runExtentExport(cmd *cobra.Command, extent *tileindex.Extent) error {
	features, _ := cmd.Flags().GetBool("features")
	out, _ := cmd.Flags().GetString("out")

	return executeExport(cmd, func(ctx context.Context, _ db.Pool, e *export.Exporter) (export.Summary, error) {
		w, closeFn, err := openOutput(out)
		if err != nil {
			return export.Summary{}, err
		}
		defer closeFn()

		if out != "" && out != "-" {
			e = e.WithFileIdentifier(filepath.Base(out))
		}
		if features {
			if err := writeMetadataSidecar(e, out); err != nil {
				return export.Summary{}, err
			}
			return e.ExportFeatures(ctx, extent, w)
		}
		return e.ExportDocument(ctx, extent, w)
	})
}

// writeMetadataSidecar writes the metadata.city.json header document next to
// a line-delimited feature export, so consumers can pick up the shared
// transform without reading the stream.
func writeMetadataSidecar(e *export.Exporter, out string) error {
	if out == "" || out == "-" {
		return nil
	}
	doc, err := e.MetadataDocument()
	if err != nil {
		return err
	}
	path := filepath.Join(filepath.Dir(out), "metadata.city.json")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

// executeExport wires the pool, mapping, journal and run bookkeeping around
// one export function.
func executeExport(cmd *cobra.Command, fn func(context.Context, db.Pool, *export.Exporter) (export.Summary, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mappingPath, _ := cmd.Flags().GetString("mapping")
	if mappingPath == "" {
		mappingPath = cfg.Export.MappingPath
	}
	mapping, err := config.LoadMapping(mappingPath)
	if err != nil {
		return err
	}

	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs < 1 {
		jobs = cfg.Export.Jobs
	}
	translate, err := cfg.Export.Translation()
	if err != nil {
		return err
	}

	pool, err := dbPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()
	if err := j.Migrate(ctx); err != nil {
		return err
	}

	runID, err := j.StartRun(ctx, commandLine(cmd))
	if err != nil {
		return err
	}

	exporter := export.New(export.Options{
		Pool:      pool,
		Mapping:   mapping,
		Transform: cityjson.NewTransform(cfg.Export.ImportantDigits, translate),
		Metadata: cityjson.Metadata{
			ReferenceSystem: cityjson.ReferenceSystemURL(cfg.TileIndex.SRID),
		},
		Digits:  cfg.Export.ImportantDigits,
		Jobs:    jobs,
		SRID:    cfg.TileIndex.SRID,
		Index:   indexTable(),
		Journal: j,
		RunID:   runID,
	})

	summary, err := fn(ctx, pool, exporter)
	if err != nil {
		if ferr := j.FinishRun(ctx, runID, journal.StatusFailed, summary.Objects, summary.Tiles, summary.Skipped, err.Error()); ferr != nil {
			zap.L().Warn("journal finish failed", zap.Error(ferr))
		}
		return err
	}
	if err := j.FinishRun(ctx, runID, journal.StatusComplete, summary.Objects, summary.Tiles, summary.Skipped, ""); err != nil {
		zap.L().Warn("journal finish failed", zap.Error(err))
	}

	fmt.Printf("Run %s: %d objects", runID, summary.Objects)
	if summary.Tiles > 0 {
		fmt.Printf(", %d tiles", summary.Tiles)
	}
	if summary.Skipped > 0 {
		fmt.Printf(", %d skipped", summary.Skipped)
	}
	fmt.Println()
	return nil
}

// openOutput opens the output target, treating - as stdout.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

// commandLine reconstructs the invoked command for the journal.
func commandLine(cmd *cobra.Command) string {
	parts := []string{cmd.CommandPath()}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		parts = append(parts, "--"+f.Name+"="+f.Value.String())
	})
	return strings.Join(parts, " ")
}

// resolveStore builds the tile index store for tile resolution.
func resolveStore(pool db.Pool) *tileindex.Store {
	return tileindex.NewStore(pool, indexTable(), cfg.TileIndex.SRID)
}
