package loader

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/airmap/internal/config"
	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/pipeline"
)

// DistrictOptionsFrom builds district options from the polygons section.
func DistrictOptionsFrom(cfg config.PolygonsConfig) DistrictOptions {
	return DistrictOptions{
		CodeFields:  cfg.CodeFields,
		NameFields:  cfg.NameFields,
		CodeWidth:   cfg.CodeWidth,
		SourceEPSG:  cfg.EPSG,
		TargetEPSG:  cfg.EPSG,
		Layer:       cfg.Layer,
		LevelField:  cfg.LevelField,
		LevelValues: cfg.LevelValues,
		Prefixes:    cfg.Prefixes,
	}
}

// StationOptionsFrom builds station options; stations are projected into
// the polygons' CRS.
func StationOptionsFrom(cfg *config.Config) StationOptions {
	return StationOptions{
		ReadingsPath: cfg.Input.Stations.ReadingsPath,
		SourceEPSG:   cfg.Input.Stations.EPSG,
		TargetEPSG:   cfg.Input.Polygons.EPSG,
		Component:    cfg.Run.Component,
	}
}

// IndicatorOptionsFrom builds indicator options from the indicator section.
func IndicatorOptionsFrom(cfg config.IndicatorConfig) IndicatorOptions {
	return IndicatorOptions{
		Sheet:      cfg.Sheet,
		Delimiter:  cfg.Delimiter,
		Encoding:   cfg.Encoding,
		CodeColumn: cfg.CodeColumn,
		CodeWidth:  cfg.CodeWidth,
		SkipRows:   cfg.SkipRows,
	}
}

// LoadInputs reads the three configured inputs concurrently. The first
// failure cancels the others.
func LoadInputs(ctx context.Context, cfg *config.Config) (pipeline.Inputs, error) {
	log := zap.L().With(zap.String("component", "loader"))
	start := time.Now()

	var in pipeline.Inputs
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := ReadDistricts(gctx, cfg.Input.Polygons.Path, DistrictOptionsFrom(cfg.Input.Polygons))
		if err != nil {
			return eris.Wrap(err, "loader: districts")
		}
		if len(d) == 0 {
			return model.NewConfigError("loader", "no districts left after filtering %s", cfg.Input.Polygons.Path)
		}
		in.Districts = d
		return nil
	})
	g.Go(func() error {
		t, err := ReadStations(gctx, cfg.Input.Stations.Path, StationOptionsFrom(cfg))
		if err != nil {
			return eris.Wrap(err, "loader: stations")
		}
		in.Stations = t
		return nil
	})
	g.Go(func() error {
		rows, err := ReadIndicator(cfg.Input.Indicator.Path, IndicatorOptionsFrom(cfg.Input.Indicator))
		if err != nil {
			return eris.Wrap(err, "loader: indicator")
		}
		in.Indicator = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return pipeline.Inputs{}, err
	}
	log.Info("loader: inputs loaded",
		zap.Int("districts", len(in.Districts)),
		zap.Int("stations", len(in.Stations.Stations)),
		zap.Int("indicator_rows", len(in.Indicator)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return in, nil
}
