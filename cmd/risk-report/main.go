package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"windrisk/internal/cube"
	"windrisk/internal/exporter"
	"windrisk/internal/metrics"
	"windrisk/internal/scenario"
	"windrisk/internal/sensitivity"
)

func main() {
	registryFile := flag.String("registry", "config/registry.yaml", "source registry file")
	scenarioFile := flag.String("scenario", "config/scenario.yaml", "scenario document file")
	metricsFile := flag.String("metrics", "", "metric definitions file (defaults to the built-in catalogue)")
	outputDir := flag.String("out", "reports", "output directory for report files")
	percentiles := flag.String("percentiles", "10,50,90", "comma-separated percentile bands")
	primary := flag.Int("primary", 50, "primary percentile band")
	startYear := flag.Int("start-year", 1, "first project year")
	endYear := flag.Int("end-year", 25, "last project year")
	tornadoMetric := flag.String("tornado-metric", "", "target metric for tornado analysis (skipped when empty)")
	tornadoVars := flag.String("tornado-vars", "", "comma-separated variable ids for tornado analysis")
	format := flag.String("format", "both", "output format: csv, xlsx, or both")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	params, err := parseParams(*percentiles, *primary, *startYear, *endYear)
	if err != nil {
		logger.Error("Invalid run parameters", "error", err)
		os.Exit(1)
	}

	registry, err := cube.LoadRegistry(*registryFile)
	if err != nil {
		logger.Error("Failed to load source registry", "path", *registryFile, "error", err)
		os.Exit(1)
	}

	doc, err := scenario.Load(*scenarioFile)
	if err != nil {
		logger.Error("Failed to load scenario document", "path", *scenarioFile, "error", err)
		os.Exit(1)
	}

	defs := metrics.DefaultDefinitions()
	if *metricsFile != "" {
		defs, err = metrics.LoadDefinitions(*metricsFile)
		if err != nil {
			logger.Error("Failed to load metric definitions", "path", *metricsFile, "error", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	start := time.Now()

	builder := cube.NewBuilder(logger)
	c, err := builder.Build(ctx, registry, doc, params)
	if err != nil {
		logger.Error("Cube build failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Cube built",
		"sources", c.Len(),
		"failures", len(c.Failures()),
		"duration", time.Since(start).String(),
	)
	for id, ferr := range c.Failures() {
		logger.Warn("Source failed to resolve", "source", id, "error", ferr)
	}

	agg, err := metrics.NewAggregator(defs, logger)
	if err != nil {
		logger.Error("Invalid metric catalogue", "error", err)
		os.Exit(1)
	}

	allMetrics := make(map[cube.Percentile]map[string]metrics.Result, len(params.Percentiles))
	for _, pc := range params.SortedPercentiles() {
		allMetrics[pc] = agg.ComputeAll(ctx, c, pc)
	}

	var tornado []sensitivity.Result
	if *tornadoMetric != "" {
		variables := splitList(*tornadoVars)
		if len(variables) == 0 {
			logger.Error("Tornado analysis requires -tornado-vars")
			os.Exit(1)
		}
		bands := params.SortedPercentiles()
		rng := sensitivity.Range{Lower: bands[len(bands)-1], Upper: bands[0]}

		engine := sensitivity.NewEngine(agg, logger)
		tornado, err = engine.Tornado(ctx, c, *tornadoMetric, variables, rng)
		if err != nil {
			logger.Error("Tornado analysis failed", "error", err)
			os.Exit(1)
		}
	}

	if err := writeReports(*format, *outputDir, logger, c, params, allMetrics, tornado); err != nil {
		logger.Error("Report export failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Report complete", "out", *outputDir, "duration", time.Since(start).String())
}

func parseParams(percentiles string, primary, startYear, endYear int) (cube.BuildParams, error) {
	var bands []cube.Percentile
	for _, part := range strings.Split(percentiles, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return cube.BuildParams{}, fmt.Errorf("invalid percentile %q", part)
		}
		bands = append(bands, cube.Percentile(n))
	}

	params := cube.BuildParams{
		Percentiles: bands,
		Primary:     cube.Percentile(primary),
		StartYear:   startYear,
		EndYear:     endYear,
	}
	return params, params.Validate()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeReports(format, outputDir string, logger *slog.Logger, c *cube.Cube, params cube.BuildParams, allMetrics map[cube.Percentile]map[string]metrics.Result, tornado []sensitivity.Result) error {
	if format == "csv" || format == "both" {
		csvWriter := exporter.NewCSVWriter(outputDir, logger)
		for _, pc := range params.SortedPercentiles() {
			name := fmt.Sprintf("cube_%s.csv", strings.ToLower(pc.Key()))
			if err := csvWriter.WriteCube(name, c, pc); err != nil {
				return err
			}
		}
		if err := csvWriter.WriteMetrics("metrics.csv", allMetrics[params.Primary]); err != nil {
			return err
		}
		if len(tornado) > 0 {
			if err := csvWriter.WriteTornado("tornado.csv", tornado); err != nil {
				return err
			}
		}
	}

	if format == "xlsx" || format == "both" {
		workbook := exporter.NewWorkbookWriter(outputDir, logger)
		report := exporter.Report{
			Cube:    c,
			Metrics: allMetrics,
			Tornado: tornado,
		}
		if err := workbook.Write("risk_report.xlsx", report); err != nil {
			return err
		}
	}

	return nil
}
