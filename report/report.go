// Package report writes extracted holdings to an xlsx workbook, one sheet per fund
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"fundholdings/scraper"

	"github.com/xuri/excelize/v2"
)

// MaxSheetNameLength is the longest worksheet name Excel accepts
const MaxSheetNameLength = 31

// defaultSheet is created by excelize.NewFile
const defaultSheet = "Sheet1"

var header = []interface{}{"Position", "Weight (%)"}

// Entry is one worksheet to write
type Entry struct {
	SheetName string
	Rows      []scraper.HoldingRow
}

// Entries turns extracted tables into report entries named after their funds
func Entries(tables []scraper.FundTable) []Entry {
	entries := make([]Entry, 0, len(tables))
	for _, table := range tables {
		entries = append(entries, Entry{
			SheetName: table.Fund.DisplayName(),
			Rows:      table.Rows,
		})
	}
	return entries
}

// SheetName makes name usable as a worksheet name: characters Excel rejects
// become "_" and the result is cut to MaxSheetNameLength characters
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	// Cutting can expose a quote, which Excel rejects at either end
	name = strings.Trim(truncate(name, MaxSheetNameLength), "'")
	if name == "" {
		name = "Fund"
	}
	return name
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// uniqueName appends " (2)", " (3)"... keeping the result within the length limit
func uniqueName(name string, taken map[string]bool) string {
	if !taken[strings.ToLower(name)] {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate := strings.Trim(truncate(name, MaxSheetNameLength-len(suffix)), "'") + suffix
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

// Build creates the workbook in memory. The caller must Close it.
func Build(entries []Entry) (*excelize.File, error) {
	f := excelize.NewFile()

	taken := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		name := uniqueName(SheetName(entry.SheetName), taken)
		taken[strings.ToLower(name)] = true
		names = append(names, name)

		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, entry.Rows); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write sheet %q: %w", name, err)
		}
	}

	// An empty report keeps the default sheet so the workbook stays valid
	if len(names) > 0 && !taken[strings.ToLower(defaultSheet)] {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			f.Close()
			return nil, err
		}
		index, err := f.GetSheetIndex(names[0])
		if err != nil {
			f.Close()
			return nil, err
		}
		f.SetActiveSheet(index)
	}

	return f, nil
}

func writeSheet(f *excelize.File, sheet string, rows []scraper.HoldingRow) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{row.Position, row.Weight}); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 48)
}

// Write saves the workbook to path, replacing any existing file
func Write(path string, entries []Entry) error {
	f, err := Build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WriteTo streams the workbook to w
func WriteTo(w io.Writer, entries []Entry) error {
	f, err := Build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
