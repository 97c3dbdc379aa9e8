package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tarcisiozf/dslot/internal/stats"
	"github.com/tarcisiozf/dslot/slots"
)

// utf8BOM lets spreadsheet applications detect the encoding of Hangul headers.
const utf8BOM = "\uFEFF"

// ReadIdentifiers reads one identifier per line. Surrounding whitespace is
// trimmed and blank lines are skipped.
func ReadIdentifiers(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), utf8BOM))
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read identifiers: %w", err)
	}
	return ids, nil
}

// WriteAssignmentsCSV writes one row per identifier. Missing slots are left
// empty. shard may be nil to omit the shard column.
func WriteAssignmentsCSV(w io.Writer, assignments []slots.Assignment, shard func(slots.Slot) string) error {
	header := []string{"STB_ID", "Slot"}
	if shard != nil {
		header = append(header, "Shard")
	}
	return writeCSV(w, header, func(cw *csv.Writer) error {
		for _, a := range assignments {
			record := []string{a.ID, a.Slot.String()}
			if shard != nil {
				record = append(record, shard(a.Slot))
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSummaryCSV writes the per slot counts and shares of s.
func WriteSummaryCSV(w io.Writer, s stats.Summary) error {
	return writeCSV(w, []string{"슬롯 번호", "STB 수", "비율 (%)"}, func(cw *csv.Writer) error {
		for _, row := range s.Rows() {
			record := []string{
				strconv.Itoa(row.Slot),
				strconv.Itoa(row.Count),
				strconv.FormatFloat(row.Percent, 'f', 4, 64),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(w io.Writer, header []string, rows func(cw *csv.Writer) error) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := rows(cw); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
