// Package exporter writes cube, metric and sensitivity results to disk as
// CSV files and Excel workbooks for downstream analysis.
package exporter
