package excel

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CountRow is one line of a physical stock count sheet.
type CountRow struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku"`
	Counted int    `json:"counted"`
}

var countHeaderAliases = map[string]string{
	"sku":              "sku",
	"product sku":      "sku",
	"kode":             "sku",
	"kode produk":      "sku",
	"counted":          "counted",
	"counted quantity": "counted",
	"count":            "counted",
	"quantity":         "counted",
	"qty":              "counted",
	"jumlah":           "counted",
	"stok fisik":       "counted",
}

// ParseStockCount reads the first sheet of an xlsx workbook. The header row
// must carry an sku column and a counted quantity column; blank sku rows are
// skipped.
func ParseStockCount(reader io.Reader) ([]CountRow, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	colMap := mapColumns(rows[0], countHeaderAliases)
	if _, ok := colMap["sku"]; !ok {
		return nil, fmt.Errorf("missing required column: sku")
	}
	if _, ok := colMap["counted"]; !ok {
		return nil, fmt.Errorf("missing required column: counted")
	}

	seen := make(map[string]int)
	result := make([]CountRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		sku := strings.TrimSpace(readCell(cells, colMap["sku"]))
		if sku == "" {
			continue
		}
		if first, dup := seen[sku]; dup {
			return nil, fmt.Errorf("row %d repeats sku %s from row %d", index+1, sku, first)
		}

		counted, err := parseInt(readCell(cells, colMap["counted"]))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid counted: %w", index+1, err)
		}
		if counted < 0 {
			return nil, fmt.Errorf("row %d invalid counted: must not be negative", index+1)
		}

		seen[sku] = index + 1
		result = append(result, CountRow{Row: index + 1, SKU: sku, Counted: counted})
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("excel file has no valid data rows")
	}
	return result, nil
}

func mapColumns(header []string, aliases map[string]string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := aliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	return strings.Join(strings.Fields(value), " ")
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseInt(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("value is empty")
	}
	asFloat, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.Mod(asFloat, 1) != 0 {
		return 0, fmt.Errorf("not a whole number")
	}
	return int(asFloat), nil
}
