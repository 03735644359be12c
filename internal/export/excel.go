// Package export writes index data to Excel workbooks for download.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/models"
)

const maxColumnWidth = 50

// Options selects the date range and sheets for a workbook export.
type Options struct {
	StartDate           time.Time
	EndDate             time.Time
	IncludePerformance  bool
	IncludeCompositions bool
	IncludeChanges      bool
}

// Store is the slice of the database layer the exporter reads.
type Store interface {
	GetIndexPerformance(startDate, endDate time.Time) ([]*models.IndexPerformance, error)
	GetCompositionExportRows(startDate, endDate time.Time) ([]*database.CompositionExportRow, error)
	GetCompositionChanges(startDate, endDate time.Time) ([]*models.CompositionChange, error)
}

// Exporter writes xlsx workbooks under a directory.
type Exporter struct {
	store  Store
	dir    string
	logger *slog.Logger
}

// NewExporter creates an exporter that writes into dir
func NewExporter(db *database.DB, dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{store: db, dir: dir, logger: logger}
}

// Export writes the selected sheets plus a summary sheet and returns the
// file's download metadata. The summary only covers included sections.
func (e *Exporter) Export(ctx context.Context, opts Options) (*models.ExportResult, error) {
	if opts.EndDate.Before(opts.StartDate) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			opts.StartDate.Format(models.DateFormat), opts.EndDate.Format(models.DateFormat))
	}

	var (
		performance  []*models.IndexPerformance
		compositions []*database.CompositionExportRow
		changes      []*models.CompositionChange
		err          error
	)
	if opts.IncludePerformance {
		performance, err = e.store.GetIndexPerformance(opts.StartDate, opts.EndDate)
		if err != nil {
			return nil, fmt.Errorf("failed to read performance for export: %w", err)
		}
	}
	if opts.IncludeCompositions {
		compositions, err = e.store.GetCompositionExportRows(opts.StartDate, opts.EndDate)
		if err != nil {
			return nil, fmt.Errorf("failed to read compositions for export: %w", err)
		}
	}
	if opts.IncludeChanges {
		changes, err = e.store.GetCompositionChanges(opts.StartDate, opts.EndDate)
		if err != nil {
			return nil, fmt.Errorf("failed to read composition changes for export: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	firstSheet := true
	addSheet := func(name string, rows [][]interface{}) error {
		if firstSheet {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("failed to create sheet %s: %w", name, err)
			}
			firstSheet = false
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		return writeSheet(f, name, rows)
	}

	if opts.IncludePerformance {
		if err := addSheet("Performance", performanceRows(performance)); err != nil {
			return nil, err
		}
	}
	if opts.IncludeCompositions {
		if err := addSheet("Compositions", compositionRows(compositions)); err != nil {
			return nil, err
		}
	}
	if opts.IncludeChanges {
		if err := addSheet("Composition Changes", changeRows(changes)); err != nil {
			return nil, err
		}
	}
	if err := addSheet("Summary", summaryRows(opts, performance, compositions, changes)); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	filename := fmt.Sprintf("index_data_%s_to_%s_%s.xlsx",
		opts.StartDate.Format(models.DateFormat),
		opts.EndDate.Format(models.DateFormat),
		time.Now().Format("20060102_150405"))
	path := filepath.Join(e.dir, filename)

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("failed to save workbook: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workbook: %w", err)
	}

	e.logger.Info("export written",
		"file", filename,
		"bytes", info.Size(),
		"performance_rows", len(performance),
		"composition_rows", len(compositions),
		"change_rows", len(changes),
	)

	return &models.ExportResult{
		FileURL:    "/api/v1/download/" + filename,
		FilePath:   path,
		Filename:   filename,
		FileSize:   info.Size(),
		ExportDate: time.Now(),
	}, nil
}

func performanceRows(series []*models.IndexPerformance) [][]interface{} {
	rows := [][]interface{}{
		{"Date", "Daily Return (%)", "Cumulative Return (%)", "Index Value"},
	}
	for _, p := range series {
		rows = append(rows, []interface{}{
			p.Date.Format(models.DateFormat), p.DailyReturn, p.CumulativeReturn, p.IndexValue,
		})
	}
	return rows
}

func compositionRows(entries []*database.CompositionExportRow) [][]interface{} {
	rows := [][]interface{}{
		{"Date", "Symbol", "Weight (%)", "Market Cap", "Rank", "Company Name", "Exchange"},
	}
	for _, r := range entries {
		marketCap, _ := r.MarketCap.Float64()
		rows = append(rows, []interface{}{
			r.Date.Format(models.DateFormat), r.Symbol, r.Weight * 100, marketCap, r.Rank,
			strOrEmpty(r.Name), strOrEmpty(r.Exchange),
		})
	}
	return rows
}

func changeRows(changes []*models.CompositionChange) [][]interface{} {
	rows := [][]interface{}{
		{"Date", "Symbol", "Action", "Previous Rank", "New Rank", "Market Cap"},
	}
	for _, c := range changes {
		marketCap, _ := c.MarketCap.Float64()
		rows = append(rows, []interface{}{
			c.Date.Format(models.DateFormat), c.Symbol, c.Action,
			intOrBlank(c.PreviousRank), intOrBlank(c.NewRank), marketCap,
		})
	}
	return rows
}

func summaryRows(opts Options, performance []*models.IndexPerformance, compositions []*database.CompositionExportRow, changes []*models.CompositionChange) [][]interface{} {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Date Range", fmt.Sprintf("%s to %s",
			opts.StartDate.Format(models.DateFormat), opts.EndDate.Format(models.DateFormat))},
	}

	if opts.IncludePerformance {
		rows = append(rows, []interface{}{"Total Trading Days", len(performance)})
		if len(performance) > 0 {
			sum := 0.0
			maxCum := performance[0].CumulativeReturn
			minCum := performance[0].CumulativeReturn
			for _, p := range performance {
				sum += p.DailyReturn
				if p.CumulativeReturn > maxCum {
					maxCum = p.CumulativeReturn
				}
				if p.CumulativeReturn < minCum {
					minCum = p.CumulativeReturn
				}
			}
			rows = append(rows,
				[]interface{}{"Average Daily Return (%)", sum / float64(len(performance))},
				[]interface{}{"Max Cumulative Return (%)", maxCum},
				[]interface{}{"Min Cumulative Return (%)", minCum},
			)
		}
	}

	if opts.IncludeCompositions {
		days := make(map[string]struct{})
		symbols := make(map[string]struct{})
		weightSum := 0.0
		for _, r := range compositions {
			days[r.Date.Format(models.DateFormat)] = struct{}{}
			symbols[r.Symbol] = struct{}{}
			weightSum += r.Weight
		}
		rows = append(rows,
			[]interface{}{"Composition Days", len(days)},
			[]interface{}{"Unique Symbols", len(symbols)},
		)
		if len(compositions) > 0 {
			rows = append(rows, []interface{}{"Average Weight (%)", weightSum / float64(len(compositions)) * 100})
		}
	}

	if opts.IncludeChanges {
		entered, exited := 0, 0
		for _, c := range changes {
			switch c.Action {
			case models.ChangeActionEntered:
				entered++
			case models.ChangeActionExited:
				exited++
			}
		}
		rows = append(rows,
			[]interface{}{"Total Composition Changes", len(changes)},
			[]interface{}{"Symbols Entered", entered},
			[]interface{}{"Symbols Exited", exited},
		)
	}

	return rows
}

// writeSheet fills a sheet from a row grid and sizes each column to its
// widest cell, capped so one long name cannot blow up the layout.
func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	widths := make(map[int]float64)
	for r, row := range rows {
		for c, value := range row {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("failed to address cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
			if w := float64(len(fmt.Sprint(value))) + 2; w > widths[c] {
				widths[c] = w
			}
		}
	}

	for c, width := range widths {
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return fmt.Errorf("failed to name column: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}
	return nil
}

func intOrBlank(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
