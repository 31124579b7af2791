package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements SheetWriter by saving an Excel workbook to disk.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates a writer that saves to path.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write replaces the file at the writer's path with a fresh workbook.
func (w *XLSXWriter) Write(_ context.Context, wb Workbook) error {
	f, err := render(wb)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// render builds an in-memory workbook with the CONVERSIONS and POOLS sheets.
func render(wb Workbook) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetConversions); err != nil {
		f.Close()
		return nil, fmt.Errorf("renaming default sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetPools); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating %s sheet: %w", SheetPools, err)
	}

	if err := writeRows(f, SheetConversions, conversionValues(wb.Conversions)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, SheetPools, poolValues(wb.Pools)); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
