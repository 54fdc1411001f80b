package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cjdb-export/internal/cityjson"
	"github.com/sells-group/cjdb-export/internal/config"
	"github.com/sells-group/cjdb-export/internal/db"
	"github.com/sells-group/cjdb-export/internal/geometry"
	"github.com/sells-group/cjdb-export/internal/journal"
	"github.com/sells-group/cjdb-export/internal/tileindex"
)

// Options configures an Exporter.
type Options struct {
	Pool      db.Pool
	Mapping   *config.Mapping
	Transform cityjson.Transform
	Metadata  cityjson.Metadata
	Digits    int
	Jobs      int
	SRID      int
	Index     tileindex.TableRef
	Journal   *journal.Journal // optional
	RunID     string
}

// Summary counts what an export produced.
type Summary struct {
	Objects int
	Tiles   int
	Skipped int
}

// Exporter reads mapped feature tables and writes CityJSON. One Exporter
// serves one run; per-tile exports fan out over a bounded worker group.
type Exporter struct {
	opts   Options
	logger *zap.Logger
}

// New creates an Exporter.
func New(opts Options) *Exporter {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	return &Exporter{
		opts:   opts,
		logger: zap.L().With(zap.String("component", "export")),
	}
}

// WithFileIdentifier returns a copy of the exporter whose documents carry
// the given metadata file identifier.
func (e *Exporter) WithFileIdentifier(name string) *Exporter {
	opts := e.opts
	opts.Metadata.FileIdentifier = name
	return &Exporter{opts: opts, logger: e.logger}
}

// ExportDocument writes every feature in the extent as one CityJSON
// document.
func (e *Exporter) ExportDocument(ctx context.Context, extent *tileindex.Extent, w io.Writer) (Summary, error) {
	objects, skipped, err := e.collect(ctx, extent)
	if err != nil {
		return Summary{}, err
	}

	builder := cityjson.NewBuilder(e.opts.Transform, e.opts.Metadata)
	for _, co := range objects {
		if err := builder.Add(co); err != nil {
			return Summary{}, err
		}
	}
	out, err := builder.MarshalDocument()
	if err != nil {
		return Summary{}, err
	}
	if _, err := w.Write(out); err != nil {
		return Summary{}, eris.Wrap(err, "export: write document")
	}
	return Summary{Objects: len(objects), Skipped: skipped}, nil
}

// MetadataDocument renders the header document shared by a feature export.
func (e *Exporter) MetadataDocument() ([]byte, error) {
	return cityjson.MarshalMetadata(e.opts.Transform, e.opts.Metadata)
}

// ExportFeatures writes the extent as line-delimited CityJSONFeature
// records, preceded by a metadata header document that carries the shared
// transform and reference system.
func (e *Exporter) ExportFeatures(ctx context.Context, extent *tileindex.Extent, w io.Writer) (Summary, error) {
	header, err := cityjson.MarshalMetadata(e.opts.Transform, e.opts.Metadata)
	if err != nil {
		return Summary{}, err
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		return Summary{}, eris.Wrap(err, "export: write feature header")
	}

	objects, skipped, err := e.collect(ctx, extent)
	if err != nil {
		return Summary{}, err
	}
	for _, co := range objects {
		line, err := cityjson.MarshalFeature(co, e.opts.Transform)
		if err != nil {
			return Summary{}, err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return Summary{}, eris.Wrap(err, "export: write feature")
		}
	}
	return Summary{Objects: len(objects), Skipped: skipped}, nil
}

// ExportTiles writes one CityJSON document per tile into outDir, running up
// to Jobs tiles in parallel. The first failing tile cancels the rest.
func (e *Exporter) ExportTiles(ctx context.Context, tiles []string, outDir string) (Summary, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Summary{}, eris.Wrapf(err, "export: create %s", outDir)
	}

	var mu sync.Mutex
	var total Summary

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Jobs)
	for _, tile := range tiles {
		g.Go(func() error {
			start := time.Now()
			summary, err := e.exportTile(ctx, tile, outDir)
			if err != nil {
				return eris.Wrapf(err, "tile %s", tile)
			}
			e.recordTile(ctx, tile, summary.Objects, time.Since(start))
			e.logger.Info("tile exported",
				zap.String("tile", tile),
				zap.Int("objects", summary.Objects),
				zap.Duration("took", time.Since(start)))

			mu.Lock()
			total.Objects += summary.Objects
			total.Skipped += summary.Skipped
			total.Tiles++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return total, nil
}

func (e *Exporter) exportTile(ctx context.Context, tile, outDir string) (Summary, error) {
	path := filepath.Join(outDir, tile+".city.json")
	f, err := os.Create(path)
	if err != nil {
		return Summary{}, eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	summary, err := e.WithFileIdentifier(tile+".city.json").
		ExportDocument(ctx, tileindex.FromTiles([]string{tile}), f)
	if err != nil {
		return Summary{}, err
	}
	return summary, eris.Wrapf(f.Close(), "export: close %s", path)
}

// collect reads all mapped tables scoped to the extent and returns the
// resulting city objects in deterministic order: object type, then mapping
// order, then primary key. Features that cannot be converted are logged,
// recorded in the journal and counted, never fatal.
func (e *Exporter) collect(ctx context.Context, extent *tileindex.Extent) ([]cityjson.CityObject, int, error) {
	m := e.opts.Mapping

	types := make([]string, 0, len(m.CityObjects))
	for cotype := range m.CityObjects {
		types = append(types, cotype)
	}
	sort.Strings(types)

	filter := &Filter{Extent: extent, Index: e.opts.Index, SRID: e.opts.SRID}
	if extent == nil || extent.All() {
		filter = nil
	}

	var objects []cityjson.CityObject
	skipped := 0
	for _, cotype := range types {
		for _, table := range m.CityObjects[cotype] {
			source := NewSource(e.opts.Pool, table)
			features, err := source.Fetch(ctx, filter)
			if err != nil {
				return nil, 0, err
			}

			factory := &Factory{
				Type: cotype,
				Assembler: &geometry.Assembler{
					Columns:    m.LoDColumns(table),
					DefaultLoD: m.Geometries.LoD,
					Mapping:    geometry.SemanticsMapping(m.Semantics),
				},
				Digits: e.opts.Digits,
			}
			for _, feat := range features {
				co, err := factory.CityObject(feat)
				if err != nil {
					e.logger.Warn("skipping feature",
						zap.String("source", source.Name()),
						zap.String("pk", feat.PK),
						zap.Error(err))
					e.recordSkip(ctx, source.Name(), feat.PK, err)
					skipped++
					continue
				}
				objects = append(objects, co)
			}
		}
	}
	return objects, skipped, nil
}

func (e *Exporter) recordSkip(ctx context.Context, source, pk string, reason error) {
	if e.opts.Journal == nil {
		return
	}
	if err := e.opts.Journal.RecordSkip(ctx, e.opts.RunID, source, pk, reason.Error()); err != nil {
		e.logger.Warn("journal skip record failed", zap.Error(err))
	}
}

func (e *Exporter) recordTile(ctx context.Context, tile string, objects int, took time.Duration) {
	if e.opts.Journal == nil {
		return
	}
	if err := e.opts.Journal.RecordTile(ctx, e.opts.RunID, tile, objects, took); err != nil {
		e.logger.Warn("journal tile record failed", zap.Error(err))
	}
}
