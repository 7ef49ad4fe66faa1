// Package export renders a metadata record as an XLSX workbook, one row per
// schema field in catalog order.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/contractlens/extractor/internal/schema"
)

const sheetName = "Metadata"

var headers = []string{"Category", "Field", "Extracted Value", "Match Flag", "Score", "Status", "Notes"}

// WriteXLSX writes the record to w as an XLSX workbook. Fields appear in
// catalog order regardless of map iteration, so exports diff cleanly.
func WriteXLSX(w io.Writer, rec schema.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("export: new sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("export: delete default sheet: %w", err)
	}

	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("export: header: %w", err)
		}
	}

	row := 2
	for _, cat := range schema.Catalog {
		for _, field := range cat.Fields {
			fr, ok := rec[cat.Name][field.Name]
			if !ok {
				fr = schema.NotFoundField()
			}
			values := []any{
				cat.Name,
				field.Name,
				fr.ExtractedValue,
				string(fr.MatchFlag),
				fr.Validation.Score,
				string(fr.Validation.Status),
				fr.Validation.Notes,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(sheetName, cell, v); err != nil {
					return fmt.Errorf("export: cell %s: %w", cell, err)
				}
			}
			row++
		}
	}

	if err := f.SetColWidth(sheetName, "A", "B", 28); err != nil {
		return fmt.Errorf("export: col width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "C", "C", 48); err != nil {
		return fmt.Errorf("export: col width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}
