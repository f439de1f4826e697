package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"placepulse/internal/config"
	"placepulse/internal/index"
)

// ReportExporter writes calibration and analysis reports
type ReportExporter struct {
	csvWriter *CSVWriter
	paths     config.PathsConfig
	logger    *slog.Logger
}

// NewReportExporter creates a new report exporter
func NewReportExporter(paths config.PathsConfig, logger *slog.Logger) *ReportExporter {
	return &ReportExporter{
		csvWriter: NewCSVWriter(paths),
		paths:     paths,
		logger:    logger.With(slog.String("component", "report_exporter")),
	}
}

var parameterHeaders = []string{
	"keyword", "status", "index1_constant", "index2_slope", "index2_intercept",
	"sample_count", "fit_quality", "last_calibrated_at",
}

// ExportParametersCSV writes every keyword's calibrated parameters
func (e *ReportExporter) ExportParametersCSV(params []index.KeywordParameters, filePath string) error {
	records := make([][]string, 0, len(params))
	for _, p := range params {
		calibratedAt := ""
		if !p.LastCalibratedAt.IsZero() {
			calibratedAt = p.LastCalibratedAt.UTC().Format(time.RFC3339)
		}
		records = append(records, []string{
			p.Keyword,
			string(p.Status),
			formatIndex(p.Index1Constant),
			formatIndex(p.Index2Slope),
			formatIndex(p.Index2Intercept),
			formatInt(p.SampleCount),
			formatFloat(p.FitQuality),
			calibratedAt,
		})
	}
	return e.csvWriter.WriteSimpleCSV(filePath, parameterHeaders, records)
}

var significanceHeaders = []string{
	"feature", "lag", "correlation", "p_value", "is_significant",
	"coefficient", "sample_size",
}

// ExportSignificanceCSV writes the feature significance table
func (e *ReportExporter) ExportSignificanceCSV(rows []index.FeatureSignificance, filePath string) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		pValue := ""
		if row.PValue != nil {
			pValue = formatIndex(*row.PValue)
		}
		records = append(records, []string{
			string(row.Feature),
			row.Lag.String(),
			formatFloat(row.Correlation),
			pValue,
			formatBool(row.Significant),
			formatIndex(row.Coefficient),
			formatInt(row.SampleSize),
		})
	}
	return e.csvWriter.WriteSimpleCSV(filePath, significanceHeaders, records)
}

var observationHeaders = []string{
	"keyword", "entity_id", "entity_name", "date", "rank",
	"index1", "index2", "index3", "blog_count", "visit_count", "save_count",
}

// ExportObservationsCSV streams the observation history, which can grow
// large enough that building the full record slice is wasteful
func (e *ReportExporter) ExportObservationsCSV(observations []index.Observation, filePath string) error {
	stream, err := e.csvWriter.CreateStreamWriter(filePath, observationHeaders)
	if err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			obs.Keyword,
			obs.EntityID,
			obs.EntityName,
			obs.Date.UTC().Format("2006-01-02"),
			formatInt(obs.Rank),
			formatIndex(obs.Index1),
			formatIndex(obs.Index2),
			formatIndex(obs.Index3),
			formatInt(obs.BlogCount),
			formatInt(obs.VisitCount),
			formatInt(obs.SaveCount),
		}
		if err := stream.WriteRecord(record); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write observation record: %w", err)
		}
	}
	return stream.Close()
}

// ExportAnalysisWorkbook writes the combined analysis workbook: one sheet
// of calibrated parameters, one of the significance table and one carrying
// the recommendation text.
func (e *ReportExporter) ExportAnalysisWorkbook(params []index.KeywordParameters, report index.AnalysisReport, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	const paramSheet = "Parameters"
	f.SetSheetName("Sheet1", paramSheet)
	if err := writeSheetRow(f, paramSheet, 1, parameterHeaders); err != nil {
		return err
	}
	for i, p := range params {
		row := []string{
			p.Keyword,
			string(p.Status),
			formatIndex(p.Index1Constant),
			formatIndex(p.Index2Slope),
			formatIndex(p.Index2Intercept),
			formatInt(p.SampleCount),
			formatFloat(p.FitQuality),
			p.LastCalibratedAt.UTC().Format(time.RFC3339),
		}
		if err := writeSheetRow(f, paramSheet, i+2, row); err != nil {
			return err
		}
	}

	const sigSheet = "Significance"
	if _, err := f.NewSheet(sigSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeSheetRow(f, sigSheet, 1, significanceHeaders); err != nil {
		return err
	}
	for i, row := range report.Rows {
		pValue := ""
		if row.PValue != nil {
			pValue = formatIndex(*row.PValue)
		}
		cells := []string{
			string(row.Feature),
			row.Lag.String(),
			formatFloat(row.Correlation),
			pValue,
			formatBool(row.Significant),
			formatIndex(row.Coefficient),
			formatInt(row.SampleSize),
		}
		if err := writeSheetRow(f, sigSheet, i+2, cells); err != nil {
			return err
		}
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.SetCellValue(summarySheet, "A1", "run_at"); err != nil {
		return err
	}
	if err := f.SetCellValue(summarySheet, "B1", report.RunAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := f.SetCellValue(summarySheet, "A2", "recommendation"); err != nil {
		return err
	}
	if err := f.SetCellValue(summarySheet, "B2", report.Recommendation); err != nil {
		return err
	}

	fullPath := filePath
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(e.paths.ReportsDir, filePath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	e.logger.Info("writing analysis workbook",
		slog.String("path", fullPath),
		slog.Int("keywords", len(params)),
		slog.Int("significance_rows", len(report.Rows)))
	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeSheetRow writes one row of string cells starting at column A
func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d on %s: %w", row, sheet, err)
	}
	return nil
}
