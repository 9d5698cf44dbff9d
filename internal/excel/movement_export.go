package excel

import (
	"fmt"
	"io"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/xuri/excelize/v2"
)

const movementSheet = "Movements"

var movementHeader = []any{
	"Date", "Product ID", "Type", "Change", "Previous", "New",
	"Reason", "Reference", "Supplier", "Cost Price", "By",
}

// WriteMovements renders the ledger rows as a single-sheet xlsx workbook.
func WriteMovements(w io.Writer, movements []model.StockMovement) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", movementSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := file.SetSheetRow(movementSheet, "A1", &movementHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, m := range movements {
		cost := ""
		if m.CostPrice.Valid {
			cost = m.CostPrice.Decimal.StringFixed(2)
		}
		row := []any{
			m.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			m.ProductID,
			string(m.MovementType),
			m.QuantityChange,
			m.PreviousStock,
			m.NewStock,
			deref(m.Reason),
			deref(m.Reference),
			deref(m.SupplierName),
			cost,
			deref(m.CreatedBy),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(movementSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := file.SetPanes(movementSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
