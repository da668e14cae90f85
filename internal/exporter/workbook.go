package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"windrisk/internal/cube"
	"windrisk/internal/metrics"
	"windrisk/internal/sensitivity"
)

// WorkbookWriter assembles a full risk report as a single Excel workbook:
// one sheet per percentile band, a metrics sheet and a tornado sheet.
type WorkbookWriter struct {
	reportsDir string
	logger     *slog.Logger
}

// NewWorkbookWriter creates a workbook writer rooted at the reports directory
func NewWorkbookWriter(reportsDir string, logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookWriter{
		reportsDir: reportsDir,
		logger:     logger.With(slog.String("component", "exporter.workbook")),
	}
}

// Report bundles everything one workbook export needs.
type Report struct {
	Cube    *cube.Cube
	Metrics map[cube.Percentile]map[string]metrics.Result
	Tornado []sensitivity.Result
}

// Write renders the report to an .xlsx file under the reports directory.
func (w *WorkbookWriter) Write(fileName string, report Report) error {
	if report.Cube == nil {
		return fmt.Errorf("workbook export requires a built cube")
	}

	fullPath := filepath.Join(w.reportsDir, fileName)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	bands := report.Cube.Params().SortedPercentiles()
	for i, pc := range bands {
		sheet := pc.Key()
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
			}
		}
		if err := w.writeCubeSheet(f, sheet, report.Cube, pc); err != nil {
			return err
		}
	}

	if len(report.Metrics) > 0 {
		if err := w.writeMetricsSheet(f, report.Metrics); err != nil {
			return err
		}
	}
	if len(report.Tornado) > 0 {
		if err := w.writeTornadoSheet(f, report.Tornado); err != nil {
			return err
		}
	}

	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("workbook written",
		slog.String("path", fullPath),
		slog.Int("bands", len(bands)),
		slog.Int("sources", report.Cube.Len()))
	return nil
}

// writeCubeSheet writes one band's source-by-year matrix.
func (w *WorkbookWriter) writeCubeSheet(f *excelize.File, sheet string, c *cube.Cube, pc cube.Percentile) error {
	years := c.Params().Years()

	headers := []any{"Source", "Name", "Category", "Cashflow Group"}
	for _, year := range years {
		headers = append(headers, year)
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}

	row := 2
	for _, src := range c.Sources() {
		series, ok := src.SeriesFor(pc)
		if !ok {
			continue
		}
		cells := []any{src.ID, src.Metadata.Name, src.Metadata.Category, src.Metadata.CashflowGroup}
		for _, year := range years {
			if v, ok := series.ValueAt(year); ok {
				cells = append(cells, v)
			} else {
				cells = append(cells, nil)
			}
		}
		if err := setRow(f, sheet, row, cells); err != nil {
			return err
		}
		row++
	}
	return nil
}

// writeMetricsSheet writes the metric catalogue, one row per metric, one
// value column per band.
func (w *WorkbookWriter) writeMetricsSheet(f *excelize.File, all map[cube.Percentile]map[string]metrics.Result) error {
	const sheet = "Metrics"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	bands := make([]cube.Percentile, 0, len(all))
	for pc := range all {
		bands = append(bands, pc)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })

	keySet := map[string]struct{}{}
	for _, results := range all {
		for key := range results {
			keySet[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	headers := []any{"Metric", "Method"}
	for _, pc := range bands {
		headers = append(headers, pc.Key())
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}

	for i, key := range keys {
		cells := []any{key, ""}
		for _, pc := range bands {
			r, ok := all[pc][key]
			if !ok || !r.Available() {
				cells = append(cells, nil)
				continue
			}
			cells[1] = string(r.Metadata.CalculationMethod)
			cells = append(cells, *r.Value)
		}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

// writeTornadoSheet writes the ranked sensitivity table.
func (w *WorkbookWriter) writeTornadoSheet(f *excelize.File, results []sensitivity.Result) error {
	const sheet = "Tornado"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headers := []any{
		"Rank", "Variable", "Metric", "Lower Band", "Upper Band",
		"Lower Value", "Upper Value", "Baseline",
		"Impact", "Impact %", "Normalized",
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}

	for i, r := range results {
		cells := []any{
			i + 1, r.VariableID, r.MetricKey,
			r.Range.Lower.Key(), r.Range.Upper.Key(),
			optionalCell(r.Values.Lower), optionalCell(r.Values.Upper), optionalCell(r.Values.Baseline),
			r.Impact.Absolute, r.Impact.Percentage, r.Impact.Normalized,
		}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d on %s: %w", row, sheet, err)
	}
	return nil
}

func optionalCell(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
