package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"derivatio-energy/internal/engine"
	simapp "derivatio-energy/internal/simulation/application"
	simulation "derivatio-energy/internal/simulation/domain"
)

const (
	formatPDF  = "pdf"
	formatXLSX = "xlsx"
)

// BuildReportPDF renders a one-page savings report for a done simulation.
func BuildReportPDF(sim *simulation.Simulation, res *simapp.Result) ([]byte, error) {
	if sim == nil || res == nil {
		return nil, simulation.ErrNotReady
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Grid Tariff Simulation")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	line := func(format string, args ...any) {
		pdf.Cell(0, 6, fmt.Sprintf(format, args...))
		pdf.Ln(5)
	}
	line("Property: %s", sim.PropertyID)
	line("Period: %s to %s", sim.PeriodStart, sim.PeriodEnd)
	line("Tariff: %s / %s", res.Tariff.Operator, res.Tariff.TariffName)
	line("Data quality: %s", res.DataQuality())
	if res.Plan != nil && res.Plan.Coverage < 1 {
		line("Metered coverage: %.1f%%", res.Plan.Coverage*100)
	}
	if sim.CompletedAt != nil {
		line("Completed: %s", sim.CompletedAt.Format(time.RFC3339))
	}

	pdf.Ln(4)
	line("Cost without load shifting (kr): %s", res.CostWithout.StringFixed(2))
	line("Cost with load shifting (kr): %s", res.CostWith.StringFixed(2))
	line("Savings (kr): %s", res.SavingsTotal.StringFixed(2))
	if res.SavingsPct != nil {
		line("Savings (%%): %s", res.SavingsPct.Shift(2).StringFixed(1))
	}
	line("Peak kW: %.2f -> %.2f", res.PeakKWWithout, res.PeakKWWith)
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Month", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Peak kW without", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Peak kW with", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Cost without", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Cost with", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range monthRows(res.Comparison) {
		pdf.CellFormat(30, 6, row.month, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, row.peakWithout.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, row.peakWith.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, row.costWithout.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, row.costWith.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(res.WorstDaysAvoided) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 6, "Day", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "kW without", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "kW with", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, d := range res.WorstDaysAvoided {
			pdf.CellFormat(40, 6, d.Day.String(), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", d.KWWithout), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", d.KWWith), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders the summary, the monthly breakdown and the worst days on separate sheets.
func BuildReportXLSX(sim *simulation.Simulation, res *simapp.Result) ([]byte, error) {
	if sim == nil || res == nil {
		return nil, simulation.ErrNotReady
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	monthsSheet := "months"
	daysSheet := "worst_days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(monthsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Grid Tariff Simulation", ""},
		{"Simulation", sim.ID},
		{"Property", sim.PropertyID},
		{"Period start", sim.PeriodStart.String()},
		{"Period end", sim.PeriodEnd.String()},
		{"Operator", res.Tariff.Operator},
		{"Tariff", res.Tariff.TariffName},
		{"Data quality", string(res.DataQuality())},
		{"Cost without", res.CostWithout.InexactFloat64()},
		{"Cost with", res.CostWith.InexactFloat64()},
		{"Savings", res.SavingsTotal.InexactFloat64()},
		{"Peak kW without", res.PeakKWWithout},
		{"Peak kW with", res.PeakKWWith},
	}
	if res.SavingsPct != nil {
		summary = append(summary, [2]any{"Savings share", res.SavingsPct.InexactFloat64()})
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	for col, title := range []string{"Month", "Peak kW without", "Peak kW with", "Cost without", "Cost with"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(monthsSheet, cell, title)
	}
	for i, row := range monthRows(res.Comparison) {
		r := i + 2
		_ = f.SetCellValue(monthsSheet, fmt.Sprintf("A%d", r), row.month)
		_ = f.SetCellValue(monthsSheet, fmt.Sprintf("B%d", r), row.peakWithout.InexactFloat64())
		_ = f.SetCellValue(monthsSheet, fmt.Sprintf("C%d", r), row.peakWith.InexactFloat64())
		_ = f.SetCellValue(monthsSheet, fmt.Sprintf("D%d", r), row.costWithout.InexactFloat64())
		_ = f.SetCellValue(monthsSheet, fmt.Sprintf("E%d", r), row.costWith.InexactFloat64())
	}

	_ = f.SetCellValue(daysSheet, "A1", "Day")
	_ = f.SetCellValue(daysSheet, "B1", "kW without")
	_ = f.SetCellValue(daysSheet, "C1", "kW with")
	_ = f.SetCellValue(daysSheet, "D1", "Reduction kW")
	for i, d := range res.WorstDaysAvoided {
		r := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", r), d.Day.String())
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", r), d.KWWithout)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", r), d.KWWith)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", r), d.ReductionKW)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type monthRow struct {
	month                 string
	peakWithout, peakWith decimal.Decimal
	costWithout, costWith decimal.Decimal
}

// monthRows pairs the two scenarios' monthly costs. Both sides price the same months.
func monthRows(c engine.Comparison) []monthRow {
	if c.Without.Cost == nil || c.With.Cost == nil {
		return nil
	}
	with := make(map[string]engine.MonthCost, len(c.With.Cost.Months))
	for _, m := range c.With.Cost.Months {
		with[m.Month.String()] = m
	}
	rows := make([]monthRow, 0, len(c.Without.Cost.Months))
	for _, m := range c.Without.Cost.Months {
		w := with[m.Month.String()]
		rows = append(rows, monthRow{
			month:       m.Month.String(),
			peakWithout: m.PeakKW,
			peakWith:    w.PeakKW,
			costWithout: m.Total,
			costWith:    w.Total,
		})
	}
	return rows
}
