package approval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/xuri/excelize/v2"
)

// codec reads and atomically writes the raw table of a staging file. The
// first row is the header.
type codec interface {
	read(path string) ([][]string, error)
	write(path string, rows [][]string) error
}

// codecFor picks the file format from the extension: .xlsx is an Excel
// workbook, anything else is semicolon separated text.
func codecFor(path string) codec {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return xlsxCodec{sheet: "Freigaben"}
	}
	return csvCodec{comma: ';'}
}

type csvCodec struct {
	comma rune
}

func (c csvCodec) read(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = c.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
}

func (c csvCodec) write(path string, rows [][]string) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	w := csv.NewWriter(pf)
	w.Comma = c.comma
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

type xlsxCodec struct {
	sheet string
}

func (c xlsxCodec) read(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Humans may rename the sheet; fall back to the first one.
	sheet := c.sheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func (c xlsxCodec) write(path string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), c.sheet); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(c.sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(c.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	if _, err := f.WriteTo(pf); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}
