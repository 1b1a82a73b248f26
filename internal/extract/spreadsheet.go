package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

var (
	zipMagic = []byte("PK\x03\x04")
	ole2     = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// extractSpreadsheet renders every sheet as a heading line followed by tab
// separated rows. xlsx and legacy binary xls are told apart by content.
func extractSpreadsheet(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return extractXLSX(data)
	case bytes.HasPrefix(data, ole2):
		return extractXLS(data)
	}
	return "", fmt.Errorf("%w: not an xlsx or xls workbook", apperrors.ErrUnsupportedFormat)
}

func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: opening workbook: %v", apperrors.ErrUnsupportedFormat, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]string, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("reading sheet %q: %w", name, err)
		}
		sheets = append(sheets, renderSheet(name, rows))
	}
	return strings.Join(sheets, "\n\n"), nil
}

func extractXLS(data []byte) (text string, err error) {
	// The xls decoder panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed xls workbook: %v", apperrors.ErrUnsupportedFormat, r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", fmt.Errorf("%w: opening workbook: %v", apperrors.ErrUnsupportedFormat, err)
	}

	sheets := make([]string, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			values := make([]string, 0, max(row.LastCol()-row.FirstCol(), 0))
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				values = append(values, row.Col(c))
			}
			rows = append(rows, values)
		}
		sheets = append(sheets, renderSheet(sheet.Name, rows))
	}
	return strings.Join(sheets, "\n\n"), nil
}

func renderSheet(name string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("Sheet: " + name)
	for _, row := range rows {
		line := strings.Join(row, "\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}
