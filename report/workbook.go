// Package report adds slot and shard columns to spreadsheets and exports
// assignment results as CSV.
package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tarcisiozf/dslot/internal/stats"
	"github.com/tarcisiozf/dslot/slots"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	DefaultColumn = "stb_id"
	SlotColumn    = "Redis Slot"
	NodeColumn    = "Redis Node"

	minColumnWidth = 8
	maxColumnWidth = 50
	headerFill     = "FFFF00"
)

var ErrMissingColumn = errors.New("identifier column not found")

type Option func(*analyzer)

func WithBands(table *slots.BandTable) Option {
	return func(a *analyzer) {
		if table != nil {
			a.bands = table
		}
	}
}

func WithColumn(name string) Option {
	return func(a *analyzer) {
		a.column = name
	}
}

// WithOutputDir writes the result workbook to dir instead of next to the input.
func WithOutputDir(dir string) Option {
	return func(a *analyzer) {
		a.outputDir = dir
	}
}

func WithNow(now func() time.Time) Option {
	return func(a *analyzer) {
		a.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

type Result struct {
	Input       string             `json:"input"`
	Output      string             `json:"output"`
	Sheet       string             `json:"sheet"`
	Rows        int                `json:"rows"`
	Missing     int                `json:"missing"`
	Overwritten []string           `json:"overwritten,omitempty"`
	Shards      []stats.ShardCount `json:"shards"`
}

type analyzer struct {
	bands     *slots.BandTable
	column    string
	outputDir string
	now       func() time.Time
	logger    *zap.Logger
}

// OutputName is the file name of the analysis workbook for the given day.
func OutputName(day time.Time) string {
	return fmt.Sprintf("Redis Timeout분석결과(발생일자 %s).xlsx", day.Format("2006-01-02"))
}

// AnalyzeWorkbook reads the active sheet of input, computes the cluster slot
// of every identifier and saves a copy with slot and node columns added.
func AnalyzeWorkbook(input string, options ...Option) (*Result, error) {
	a := &analyzer{
		bands:  slots.DefaultRedisBands(),
		column: DefaultColumn,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(a)
	}

	f, err := excelize.OpenFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", input, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %s is empty", ErrMissingColumn, sheet)
	}

	header := rows[0]
	idCol := slices.Index(header, a.column)
	if idCol < 0 {
		return nil, fmt.Errorf("%w: %q not in %v", ErrMissingColumn, a.column, header)
	}

	result := &Result{Input: input, Sheet: sheet, Rows: len(rows) - 1}
	slotCol, nodeCol := slices.Index(header, SlotColumn), slices.Index(header, NodeColumn)
	for _, existing := range []struct {
		name string
		col  int
	}{{SlotColumn, slotCol}, {NodeColumn, nodeCol}} {
		if existing.col >= 0 {
			result.Overwritten = append(result.Overwritten, existing.name)
			a.logger.Warn("existing column will be overwritten", zap.String("column", existing.name))
		}
	}

	next := len(header)
	if slotCol < 0 || nodeCol < 0 {
		// blank separator between the original and the added columns
		next++
	}
	if slotCol < 0 {
		slotCol = next
		next++
	}
	if nodeCol < 0 {
		nodeCol = next
	}

	widths := make(map[int]int)
	measure := func(col int, value string) {
		widths[col] = max(widths[col], displayLength(value))
	}
	for _, row := range rows {
		for col, value := range row {
			measure(col, value)
		}
	}

	if err := setString(f, sheet, slotCol, 1, SlotColumn); err != nil {
		return nil, err
	}
	if err := setString(f, sheet, nodeCol, 1, NodeColumn); err != nil {
		return nil, err
	}
	measure(slotCol, SlotColumn)
	measure(nodeCol, NodeColumn)

	assignments := make([]slots.Assignment, 0, result.Rows)
	for i, row := range rows[1:] {
		rowNum := i + 2
		id := ""
		if idCol < len(row) {
			id = row[idCol]
		}
		slot, err := slots.CRC16Slot(id, a.bands.Slots())
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, slots.Assignment{ID: id, Slot: slot})

		slotCell, err := excelize.CoordinatesToCellName(slotCol+1, rowNum)
		if err != nil {
			return nil, err
		}
		if v, ok := slot.Value(); ok {
			err = f.SetCellValue(sheet, slotCell, v)
		} else {
			result.Missing++
			err = f.SetCellValue(sheet, slotCell, "")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", slotCell, err)
		}
		measure(slotCol, slot.String())

		nodeCell, err := excelize.CoordinatesToCellName(nodeCol+1, rowNum)
		if err != nil {
			return nil, err
		}
		// A formula cell keeps whatever value it held, so drop the old one
		// and let the reader recalculate.
		if err := f.SetCellValue(sheet, nodeCell, nil); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", nodeCell, err)
		}
		if err := f.SetCellFormula(sheet, nodeCell, NodeFormula(slotCell, a.bands)); err != nil {
			return nil, fmt.Errorf("failed to set formula at %s: %w", nodeCell, err)
		}
		measure(nodeCol, a.bands.ShardFor(slot))
	}
	fullCalcOnLoad := true
	if err := f.SetCalcProps(&excelize.CalcPropsOptions{FullCalcOnLoad: &fullCalcOnLoad}); err != nil {
		return nil, fmt.Errorf("failed to set calculation properties: %w", err)
	}

	if err := styleHeader(f, sheet, max(len(header), nodeCol+1)); err != nil {
		return nil, err
	}
	for col := 0; col <= max(len(header)-1, nodeCol); col++ {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		width := min(max(widths[col]+2, minColumnWidth), maxColumnWidth)
		if err := f.SetColWidth(sheet, name, name, float64(width)); err != nil {
			return nil, fmt.Errorf("failed to set width of column %s: %w", name, err)
		}
	}

	dir := a.outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	result.Output = filepath.Join(dir, OutputName(a.now()))
	if err := f.SaveAs(result.Output); err != nil {
		return nil, fmt.Errorf("failed to save workbook %s: %w", result.Output, err)
	}

	result.Shards = stats.Distribution(assignments, slots.CRC16, a.bands.Slots()).ShardCounts(a.bands)
	a.logger.Info("workbook analyzed",
		zap.String("output", result.Output),
		zap.Int("rows", result.Rows),
		zap.Int("missing", result.Missing))
	return result, nil
}

// NodeFormula is the spreadsheet formula that maps the slot in cell to its
// shard name, mirroring BandTable.ShardFor.
func NodeFormula(cell string, table *slots.BandTable) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `IF(%s="", "%s", `, cell, slots.ErrorShard)
	for _, band := range table.Bands() {
		fmt.Fprintf(&sb, `IF(%s<=%d, "%s", `, cell, band.Upper, strings.ReplaceAll(band.Name, `"`, `""`))
	}
	fmt.Fprintf(&sb, `"%s"`, slots.ErrorShard)
	sb.WriteString(strings.Repeat(")", table.Size()+1))
	return sb.String()
}

func setString(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", cell, err)
	}
	return nil
}

func styleHeader(f *excelize.File, sheet string, columns int) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for col := 1; col <= columns; col++ {
		cell, err := excelize.CoordinatesToCellName(col, 1)
		if err != nil {
			return err
		}
		value, err := f.GetCellValue(sheet, cell)
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to style %s: %w", cell, err)
		}
	}
	return nil
}

// displayLength counts characters, widening text with Hangul syllables by 20%.
func displayLength(value string) int {
	n := utf8.RuneCountInString(value)
	for _, r := range value {
		if r >= 0xAC00 && r <= 0xD7AF {
			return int(float64(n) * 1.2)
		}
	}
	return n
}
