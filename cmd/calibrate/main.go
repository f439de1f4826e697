package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"placepulse/internal/config"
	"placepulse/internal/exporter"
	"placepulse/internal/index"
	"placepulse/internal/infrastructure"
	"placepulse/internal/services"
	"placepulse/internal/store"
)

func main() {
	observationsPath := flag.String("observations", "", "observations csv file to calibrate from")
	parametersOut := flag.String("out", "parameters.csv", "output csv file for fitted parameters (relative paths resolve under reports)")
	workbookOut := flag.String("workbook", "", "optional analysis workbook output (xlsx)")
	timeout := flag.Duration("timeout", 5*time.Minute, "calibration cycle timeout")
	flag.Parse()

	if *observationsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: calibrate -observations <file.csv> [-out parameters.csv] [-workbook analysis.xlsx]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	observations, err := readObservations(*observationsPath)
	if err != nil {
		logger.Error("Failed to read observations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := store.NewObservationLog()
	added, err := log.AppendBatch(observations)
	if err != nil {
		logger.Error("Failed to ingest observations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Observations loaded",
		slog.String("file", *observationsPath),
		slog.Int("rows", len(observations)),
		slog.Int("ingested", added))

	params := store.NewParameterStore()
	calibration := services.NewCalibrationService(log, params, cfg.Calibration, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := calibration.RunCycle(ctx)
	if err != nil {
		logger.Error("Calibration cycle failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Calibration cycle finished",
		slog.String("run_id", result.RunID),
		slog.Int("keywords", result.Keywords),
		slog.Int("calibrated", result.Calibrated),
		slog.Int("rejected", result.Rejected),
		slog.Int("skipped", result.Skipped),
		slog.Bool("global_refit", result.GlobalRefit))

	reports := exporter.NewReportExporter(cfg.Paths, logger)
	fitted := calibration.AllParameters()
	if err := reports.ExportParametersCSV(fitted, *parametersOut); err != nil {
		logger.Error("Parameter export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Parameters exported", slog.String("file", *parametersOut), slog.Int("keywords", len(fitted)))

	if *workbookOut != "" {
		report := index.AnalysisReport{
			RunAt:          time.Now().UTC(),
			Recommendation: "no activity history loaded, significance analysis skipped",
		}
		if err := reports.ExportAnalysisWorkbook(fitted, report, *workbookOut); err != nil {
			logger.Error("Workbook export failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Workbook exported", slog.String("file", *workbookOut))
	}
}

// readObservations parses an observation history csv. The expected column
// layout matches the observations export: keyword, entity_id, entity_name,
// date, rank, index1, index2, index3, blog_count, visit_count, save_count.
func readObservations(path string) ([]index.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observations file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(stripBOM(f))
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 11 {
		return nil, fmt.Errorf("unexpected header with %d columns", len(header))
	}

	var observations []index.Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		obs, err := parseObservation(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

func parseObservation(record []string) (index.Observation, error) {
	if len(record) < 11 {
		return index.Observation{}, fmt.Errorf("expected 11 columns, got %d", len(record))
	}

	date, err := time.Parse("2006-01-02", record[3])
	if err != nil {
		return index.Observation{}, fmt.Errorf("invalid date %q: %w", record[3], err)
	}

	rank, err := strconv.Atoi(record[4])
	if err != nil {
		return index.Observation{}, fmt.Errorf("invalid rank %q: %w", record[4], err)
	}

	floats := make([]float64, 3)
	for i, col := range record[5:8] {
		floats[i], err = strconv.ParseFloat(col, 64)
		if err != nil {
			return index.Observation{}, fmt.Errorf("invalid index value %q: %w", col, err)
		}
	}

	counts := make([]int, 3)
	for i, col := range record[8:11] {
		counts[i], err = strconv.Atoi(col)
		if err != nil {
			return index.Observation{}, fmt.Errorf("invalid count %q: %w", col, err)
		}
	}

	return index.Observation{
		Keyword:    record[0],
		EntityID:   record[1],
		EntityName: record[2],
		Date:       date.UTC(),
		Rank:       rank,
		Index1:     floats[0],
		Index2:     floats[1],
		Index3:     floats[2],
		BlogCount:  counts[0],
		VisitCount: counts[1],
		SaveCount:  counts[2],
	}, nil
}

// stripBOM skips a leading UTF-8 byte order mark when present
func stripBOM(f *os.File) io.Reader {
	buf := make([]byte, 3)
	n, err := f.Read(buf)
	if err != nil || n < 3 || string(buf[:3]) != "\xef\xbb\xbf" {
		f.Seek(0, io.SeekStart)
		return f
	}
	return f
}
