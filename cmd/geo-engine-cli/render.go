package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/planner"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderResult(ui *UI, res *engine.QueryResult) {
	meta := res.Metadata
	if !res.Success {
		ui.Error("%s", res.Error)
		ui.KeyValue("Confidence", fmt.Sprintf("%.2f", meta.Confidence))
		return
	}

	ui.Section("Answer")
	for _, line := range strings.Split(res.Data.Answer, "\n") {
		fmt.Fprintln(ui.out, "  "+line)
	}

	if len(res.Data.Sources) > 0 {
		ui.Section("Sources")
		ui.Table([]string{"#", "ID", "Type", "Score", "Distance", "Location"}, sourceRows(res.Data.Sources))
	}

	if sf := res.Data.SpatialFilter; sf != nil && (len(sf.Features) > 0 || len(sf.Notes) > 0) {
		ui.Section("Spatial Filter")
		ids := make([]string, 0, len(sf.Features))
		for _, f := range sf.Features {
			ids = append(ids, f.ID)
		}
		if len(ids) > 0 {
			ui.KeyValue("Features", strings.Join(ids, ", "))
		}
		for _, note := range sf.Notes {
			ui.Warning("%s", note)
		}
	}

	if a := res.Data.Analysis; a != nil {
		ui.Section("Analysis")
		renderAnalysis(ui, a)
	}

	if agg := res.Data.Aggregation; agg != nil && len(agg.Groups) > 0 {
		ui.Section("Groups by " + agg.GroupBy)
		rows := make([][]string, 0, len(agg.Groups))
		for _, g := range agg.Groups {
			rows = append(rows, []string{g.Key, fmt.Sprint(g.Count), fmt.Sprintf("%.3f", g.MeanScore), strings.Join(g.TopIDs, ", ")})
		}
		ui.Table([]string{"Key", "Count", "Mean", "Top"}, rows)
	}

	ui.Section("Metadata")
	ui.KeyValue("Intent", meta.Intent)
	ui.KeyValue("Confidence", fmt.Sprintf("%.2f", meta.Confidence))
	ui.KeyValue("Steps", meta.StepsExecuted)
	ui.KeyValue("Cache hit", meta.CacheHit)
	ui.KeyValue("Time", FormatDuration(meta.ExecutionTime))
	ui.KeyValue("Scope", res.Data.SpatialContext.Scope)
}

func renderAnalysis(ui *UI, a *planner.AnalysisOutput) {
	if a.Note != "" {
		ui.Info("%s", a.Note)
	}
	if s := a.Statistics; s != nil {
		ui.KeyValue("Sources", s.SourceCount)
		ui.KeyValue("Located", s.LocatedCount)
		ui.KeyValue("Mean confidence", fmt.Sprintf("%.3f", s.MeanConfidence))
		if s.Centroid != nil {
			ui.KeyValue("Centroid", formatCoordinates(s.Centroid))
		}
	}
	if c := a.Comparison; c != nil {
		ui.KeyValue("Compared", c.FirstID+" vs "+c.SecondID)
		for _, d := range c.Differences {
			ui.KeyValue(d.Aspect, d.Detail)
		}
	}
}

func sourceRows(sources []vectorstore.SearchResult) [][]string {
	rows := make([][]string, 0, len(sources))
	for i, s := range sources {
		dist := "-"
		if s.DistanceKm != nil {
			dist = fmt.Sprintf("%.1f km", *s.DistanceKm)
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			s.Document.ID,
			string(s.Document.Metadata.DocType),
			fmt.Sprintf("%.3f", s.CombinedScore),
			dist,
			formatCoordinates(s.Document.Metadata.Location),
		})
	}
	return rows
}

func formatCoordinates(c *geo.Coordinates) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

func renderStats(ui *UI, s engine.Stats) {
	ui.Section("Engine")
	ui.KeyValue("Features", s.Features)
	ui.KeyValue("Documents", s.Documents)
	ui.KeyValue("Cached results", s.CacheSize)
	ui.KeyValue("Queries", s.QueriesProcessed)
	ui.KeyValue("Rejections", s.Rejections)
	ui.KeyValue("Cache hits", s.CacheHits)
}
