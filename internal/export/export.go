// Package export renders job records as spreadsheets.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"ffqueue/internal/model"
	"ffqueue/internal/statestore"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

var headers = []string{
	"Name",
	"Type",
	"Status",
	"Info",
	"Progress",
	"Command",
	"Output",
	"Created",
	"Completed",
}

// FormatForPath picks the format from the file extension; anything that
// is not .csv becomes a workbook.
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

func row(j model.Job) []string {
	completed := j.CompletedAt
	if completed == "" {
		completed = j.FinishedAt
	}
	return []string{
		j.DisplayName(),
		j.Type,
		j.Status,
		j.Info,
		strconv.Itoa(j.Progress),
		strings.TrimSpace(j.Command + " " + strings.Join(j.Args, " ")),
		j.Output,
		j.CreatedAt,
		completed,
	}
}

// XLSX returns a workbook with one sheet named sheet holding jobs in order.
func XLSX(sheet string, jobs []model.Job) ([]byte, error) {
	if strings.TrimSpace(sheet) == "" {
		sheet = "Jobs"
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, j := range jobs {
		values := row(j)
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if c == 4 {
				// numeric so the column sorts and sums
				_ = f.SetCellValue(sheet, cell, j.Progress)
				continue
			}
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "C", 12)
	_ = f.SetColWidth(sheet, "D", "D", 24)
	_ = f.SetColWidth(sheet, "E", "E", 10)
	_ = f.SetColWidth(sheet, "F", "F", 60)
	_ = f.SetColWidth(sheet, "G", "G", 28)
	_ = f.SetColWidth(sheet, "H", "I", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func CSV(jobs []model.Job) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if err := w.Write(row(j)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	return buf.Bytes(), nil
}

// ToFile writes jobs to path in the format its extension selects and
// returns that format.
func ToFile(path, sheet string, jobs []model.Job) (string, error) {
	format := FormatForPath(path)
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = CSV(jobs)
	default:
		data, err = XLSX(sheet, jobs)
	}
	if err != nil {
		return "", err
	}
	if err := statestore.WriteBytes(path, data); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return format, nil
}
