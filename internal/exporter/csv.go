package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"windrisk/internal/cube"
	"windrisk/internal/metrics"
	"windrisk/internal/sensitivity"
)

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	reportsDir string
	logger     *slog.Logger
}

// NewCSVWriter creates a new CSV writer rooted at the reports directory
func NewCSVWriter(reportsDir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{
		reportsDir: reportsDir,
		logger:     logger.With(slog.String("component", "exporter.csv")),
	}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes data to a CSV file with the given options
func (w *CSVWriter) WriteCSV(fileName string, options WriteOptions) error {
	fullPath := filepath.Join(w.reportsDir, fileName)

	w.logger.Info("writing csv file",
		slog.String("path", fullPath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// BOM helps Excel recognize UTF-8
	if options.BOMPrefix && !options.Append {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if !options.Append && len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	return writer.Error()
}

// WriteCube exports one percentile band of the cube as a source-by-year
// matrix, sources in resolution order.
func (w *CSVWriter) WriteCube(fileName string, c *cube.Cube, pc cube.Percentile) error {
	years := c.Params().Years()

	headers := []string{"source_id", "name", "category", "cashflow_group"}
	for _, year := range years {
		headers = append(headers, formatInt(year))
	}

	var records [][]string
	for _, src := range c.Sources() {
		series, ok := src.SeriesFor(pc)
		if !ok {
			continue
		}
		record := []string{
			src.ID,
			src.Metadata.Name,
			src.Metadata.Category,
			src.Metadata.CashflowGroup,
		}
		for _, year := range years {
			if v, ok := series.ValueAt(year); ok {
				record = append(record, formatFloat(v))
			} else {
				record = append(record, "")
			}
		}
		records = append(records, record)
	}

	return w.WriteCSV(fileName, WriteOptions{
		Headers:   headers,
		Records:   records,
		BOMPrefix: true,
	})
}

// WriteMetrics exports a computed metric catalogue, sorted by key.
func (w *CSVWriter) WriteMetrics(fileName string, results map[string]metrics.Result) error {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([][]string, 0, len(keys))
	for _, key := range keys {
		r := results[key]
		records = append(records, []string{
			key,
			string(r.Metadata.CalculationMethod),
			r.Metadata.Percentile.Key(),
			formatOptionalFloat(r.Value),
			r.DisplayValue,
			r.Err,
		})
	}

	return w.WriteCSV(fileName, WriteOptions{
		Headers:   []string{"metric", "method", "percentile", "value", "display_value", "error"},
		Records:   records,
		BOMPrefix: true,
	})
}

// WriteTornado exports ranked sensitivity results in the order given.
func (w *CSVWriter) WriteTornado(fileName string, results []sensitivity.Result) error {
	records := make([][]string, 0, len(results))
	for i, r := range results {
		records = append(records, []string{
			formatInt(i + 1),
			r.VariableID,
			r.MetricKey,
			r.Range.Lower.Key(),
			r.Range.Upper.Key(),
			formatOptionalFloat(r.Values.Lower),
			formatOptionalFloat(r.Values.Upper),
			formatOptionalFloat(r.Values.Baseline),
			formatFloat(r.Impact.Absolute),
			formatFloat(r.Impact.Percentage),
			formatFloat(r.Impact.Normalized),
		})
	}

	return w.WriteCSV(fileName, WriteOptions{
		Headers: []string{
			"rank", "variable", "metric", "lower_band", "upper_band",
			"lower_value", "upper_value", "baseline", "impact_absolute",
			"impact_percentage", "impact_normalized",
		},
		Records:   records,
		BOMPrefix: true,
	})
}
