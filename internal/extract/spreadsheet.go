package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// spreadsheetText renders every sheet as lines of comma-joined cells, with a
// blank line between sheets. Empty rows and cells are skipped.
func spreadsheetText(data []byte) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Result{Method: "xlsx"}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		sheets   []string
		warnings []string
	)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("sheet %q: %v", name, err))
			continue
		}
		var lines []string
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, ", "))
			}
		}
		if len(lines) > 0 {
			sheets = append(sheets, strings.Join(lines, "\n"))
		}
	}

	return Result{
		Text:     strings.Join(sheets, "\n\n"),
		Pages:    len(sheets),
		Method:   "xlsx",
		Warnings: warnings,
	}, nil
}
