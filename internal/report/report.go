// Package report renders a counting session as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"gizmo-stock/internal/model"
	"gizmo-stock/internal/session"
)

const (
	summarySheet = "Summary"
	changesSheet = "Changes"
	timeLayout   = "2006-01-02 15:04:05"
)

var changeHeaders = []string{
	"Date", "Product ID", "Product", "Reason",
	"Previous count", "Counted", "Added", "Waste", "Waste cost", "Final count", "Change",
	"Previous price", "New price", "Price change",
	"Previous cost", "New cost", "Cost change",
	"Previous barcode", "New barcode", "Previous name", "New name",
}

// Filename suggests a download name for the session's report.
func Filename(s session.Session) string {
	return fmt.Sprintf("counting-session-%s.xlsx", s.StartedAt.Format("20060102-1504"))
}

// Write renders s to w. Times are shown in loc; nil means UTC.
func Write(w io.Writer, s session.Session, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("naming summary sheet: %w", err)
	}
	if _, err := f.NewSheet(changesSheet); err != nil {
		return fmt.Errorf("creating changes sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := writeSummary(f, s, loc); err != nil {
		return err
	}
	if err := writeChanges(f, s, loc, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s session.Session, loc *time.Location) error {
	wasteCost := decimal.Zero
	stockChange := 0
	for _, c := range s.Changes {
		if c.WasteCost != nil {
			wasteCost = wasteCost.Add(decimal.NewFromFloat(*c.WasteCost))
		}
		stockChange += c.ChangeValue
	}

	ended := ""
	if s.EndedAt != nil {
		ended = s.EndedAt.In(loc).Format(timeLayout)
	}

	rows := [][]any{
		{"Session", s.ID},
		{"Status", string(s.Status)},
		{"Started", s.StartedAt.In(loc).Format(timeLayout)},
		{"Ended", ended},
		{"Total changes", s.TotalChanges},
		{"Total products", s.TotalProducts},
		{"Net stock change", stockChange},
		{"Waste cost", wasteCost.Round(2).InexactFloat64()},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 22)
}

func writeChanges(f *excelize.File, s session.Session, loc *time.Location, headerStyle int) error {
	for i, h := range changeHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(changesSheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(changeHeaders), 1)
	if err := f.SetCellStyle(changesSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, c := range s.Changes {
		row := changeRow(c, loc)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(changesSheet, cell, &row); err != nil {
			return fmt.Errorf("writing change for %s: %w", c.ProductID, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(changeHeaders))
	if err := f.SetColWidth(changesSheet, "A", lastCol, 15); err != nil {
		return err
	}
	return f.SetPanes(changesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func changeRow(c model.ChangeRecord, loc *time.Location) []any {
	return []any{
		c.Date.In(loc).Format(timeLayout),
		c.ProductID,
		c.ProductName,
		c.Reason,
		c.PreviousCount,
		intCell(c.CountedValue),
		c.AddedValue,
		intCell(c.WasteValue),
		moneyCell(c.WasteCost),
		c.FinalCount,
		c.ChangeValue,
		moneyCell(c.PreviousPrice),
		moneyCell(c.NewPrice),
		moneyCell(c.PriceChange),
		moneyCell(c.PreviousCost),
		moneyCell(c.NewCost),
		moneyCell(c.CostChange),
		c.PreviousBarcode,
		c.NewBarcode,
		c.PreviousName,
		c.NewName,
	}
}

// Absent values become empty cells.

func intCell(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func moneyCell(v *float64) any {
	if v == nil {
		return nil
	}
	return model.RoundMoney(*v)
}
