package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/zonematch/internal/geozone"
	"github.com/sells-group/zonematch/internal/zoneload"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Inspect, query, and publish zone layers",
	Long:  "Commands for working with the zone layers listed under zones.layers in the configuration.",
}

// -- zones inspect --

var zonesInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the configured zone layers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("zones"); err != nil {
			return err
		}

		layers, err := loadLayers(ctx)
		if err != nil {
			return eris.Wrap(err, "zones inspect")
		}

		format, _ := cmd.Flags().GetString("format")
		return writeLayerSummaries(os.Stdout, summarizeLayers(cfg.Zones.Layers, layers), format)
	},
}

// -- zones locate --

var zonesLocateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Resolve one point against the configured layers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("zones"); err != nil {
			return err
		}

		lon, _ := cmd.Flags().GetFloat64("lon")
		lat, _ := cmd.Flags().GetFloat64("lat")

		resolver, err := loadResolver(ctx)
		if err != nil {
			return eris.Wrap(err, "zones locate")
		}
		return locatePoint(os.Stdout, resolver, geozone.Point{Lon: lon, Lat: lat})
	},
}

// -- zones publish --

var zonesPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Copy a file-based layer into a PostGIS table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("layer")
		table, _ := cmd.Flags().GetString("table")
		codeCol, _ := cmd.Flags().GetString("code-column")
		geomCol, _ := cmd.Flags().GetString("geom-column")

		layer, err := loadNamedLayer(ctx, name)
		if err != nil {
			return eris.Wrap(err, "zones publish")
		}

		pool, err := openPostgres(ctx)
		if err != nil {
			return eris.Wrap(err, "zones publish")
		}
		defer pool.Close()

		n, err := zoneload.PublishPostGIS(ctx, pool, table, codeCol, geomCol, layer)
		if err != nil {
			return eris.Wrap(err, "zones publish")
		}

		zap.L().Info("layer published",
			zap.String("layer", name),
			zap.String("table", table),
			zap.Int64("rows", n),
		)
		return nil
	},
}

// -- zones export --

var zonesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a layer as a GeoJSON FeatureCollection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("layer")
		output, _ := cmd.Flags().GetString("output")
		codeProp, _ := cmd.Flags().GetString("code-property")

		layer, err := loadNamedLayer(ctx, name)
		if err != nil {
			return eris.Wrap(err, "zones export")
		}

		var w io.Writer = os.Stdout
		if output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrap(err, "zones export: create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return zoneload.WriteGeoJSON(w, layer, codeProp)
	},
}

func init() {
	zonesInspectCmd.Flags().String("format", "table", "output format (table, yaml, json)")

	zonesLocateCmd.Flags().Float64("lon", 0, "longitude in degrees")
	zonesLocateCmd.Flags().Float64("lat", 0, "latitude in degrees")
	_ = zonesLocateCmd.MarkFlagRequired("lon")
	_ = zonesLocateCmd.MarkFlagRequired("lat")

	zonesPublishCmd.Flags().String("layer", "", "name of the layer to publish (required)")
	zonesPublishCmd.Flags().String("table", "", "destination table, optionally schema-qualified (required)")
	zonesPublishCmd.Flags().String("code-column", zoneload.DefaultCodeColumn, "code column name")
	zonesPublishCmd.Flags().String("geom-column", zoneload.DefaultGeomColumn, "geometry column name")
	_ = zonesPublishCmd.MarkFlagRequired("layer")
	_ = zonesPublishCmd.MarkFlagRequired("table")

	zonesExportCmd.Flags().String("layer", "", "name of the layer to export (required)")
	zonesExportCmd.Flags().String("output", "-", "destination file; - for stdout")
	zonesExportCmd.Flags().String("code-property", "code", "feature property holding the zone code")
	_ = zonesExportCmd.MarkFlagRequired("layer")

	zonesCmd.AddCommand(zonesInspectCmd)
	zonesCmd.AddCommand(zonesLocateCmd)
	zonesCmd.AddCommand(zonesPublishCmd)
	zonesCmd.AddCommand(zonesExportCmd)
	rootCmd.AddCommand(zonesCmd)
}

// loadNamedLayer loads a single configured layer.
func loadNamedLayer(ctx context.Context, name string) (*geozone.Layer, error) {
	src, err := findSource(name)
	if err != nil {
		return nil, err
	}

	if src.Kind() != "postgis" {
		return zoneload.Load(ctx, src, nil, zoneOptions()...)
	}
	pool, err := openPostgres(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return zoneload.Load(ctx, src, pool, zoneOptions()...)
}

// layerSummary describes one loaded layer.
type layerSummary struct {
	Name   string     `yaml:"name" json:"name"`
	Kind   string     `yaml:"kind" json:"kind"`
	Zones  int        `yaml:"zones" json:"zones"`
	Rings  int        `yaml:"rings" json:"rings"`
	Points int        `yaml:"points" json:"points"`
	Extent []float64  `yaml:"extent,flow" json:"extent"`
	Sample []zoneCode `yaml:"sample,omitempty" json:"sample,omitempty"`
}

type zoneCode struct {
	Index int    `yaml:"index" json:"index"`
	Code  string `yaml:"code" json:"code"`
}

const summarySampleSize = 3

// summarizeLayers pairs each loaded layer with its source.
func summarizeLayers(sources []zoneload.Source, layers []*geozone.Layer) []layerSummary {
	out := make([]layerSummary, 0, len(layers))
	for i, l := range layers {
		s := layerSummary{
			Name:   l.Name,
			Zones:  l.Zones.Len(),
			Rings:  l.Zones.NumRings(),
			Points: l.Zones.NumPoints(),
		}
		if i < len(sources) {
			s.Kind = sources[i].Kind()
		}
		if ext := l.Zones.Extent(); !ext.IsEmpty() {
			s.Extent = []float64{ext.MinLon, ext.MinLat, ext.MaxLon, ext.MaxLat}
		}
		for j := 0; j < len(l.Codes) && j < summarySampleSize; j++ {
			s.Sample = append(s.Sample, zoneCode{Index: j, Code: l.Codes[j]})
		}
		out = append(out, s)
	}
	return out
}

// writeLayerSummaries renders summaries as a table, YAML, or JSON.
func writeLayerSummaries(out io.Writer, summaries []layerSummary, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(summaries); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(summaries), "encode json")
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "LAYER\tKIND\tZONES\tRINGS\tPOINTS\tEXTENT")
		_, _ = fmt.Fprintln(w, "-----\t----\t-----\t-----\t------\t------")
		for _, s := range summaries {
			ext := "-"
			if len(s.Extent) == 4 {
				ext = fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", s.Extent[0], s.Extent[1], s.Extent[2], s.Extent[3])
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", s.Name, s.Kind, s.Zones, s.Rings, s.Points, ext)
		}
		return w.Flush()
	}
	return eris.Errorf("unknown format %q (want table, yaml, or json)", format)
}

// locatePoint resolves p and writes the match, or "no zone", to out.
func locatePoint(out io.Writer, resolver *geozone.Resolver, p geozone.Point) error {
	m, ok, err := resolver.Resolve(p)
	if err != nil {
		return eris.Wrapf(err, "locate %g,%g", p.Lon, p.Lat)
	}
	if !ok {
		_, _ = fmt.Fprintf(out, "%g,%g: no zone\n", p.Lon, p.Lat)
		return nil
	}
	_, _ = fmt.Fprintf(out, "%g,%g: layer=%s code=%s polygon=%d\n", p.Lon, p.Lat, m.Layer, m.Code, m.Polygon)
	return nil
}
