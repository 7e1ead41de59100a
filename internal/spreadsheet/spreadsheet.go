// Package spreadsheet reads and writes the xlsx workbooks used for product
// import/export and financial report downloads.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"erp-server/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of every workbook written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var productHeader = []string{"sku", "name", "description", "unit", "unit_price", "cost"}

// ReadProducts parses the first sheet of an xlsx workbook. The first row is a
// header; columns are matched by name, case-insensitively, in any order. Sku
// and name columns are required. Blank rows are dropped.
func ReadProducts(r io.Reader) ([]core.ProductInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable xlsx file", core.ErrValidation)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: workbook is empty", core.ErrValidation)
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"sku", "name"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: header must include %q (expected %s)",
				core.ErrValidation, required, strings.Join(productHeader, ","))
		}
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	amount := func(row []string, name string, n int) (*decimal.Decimal, error) {
		s := cell(row, name)
		if s == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid %s %q", core.ErrValidation, n, name, s)
		}
		return &d, nil
	}

	var out []core.ProductInput
	for i, row := range rows[1:] {
		n := i + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		in := core.ProductInput{
			SKU:         cell(row, "sku"),
			Name:        cell(row, "name"),
			Description: cell(row, "description"),
			Unit:        cell(row, "unit"),
		}
		if in.UnitPrice, err = amount(row, "unit_price", n); err != nil {
			return nil, err
		}
		if in.Cost, err = amount(row, "cost", n); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// WriteProducts writes products in the import layout so an export can be
// edited and re-imported.
func WriteProducts(w io.Writer, products []core.Product) error {
	header := append(append([]string{}, productHeader...), "reorder_level", "status")
	b, err := newBook("Products", header)
	if err != nil {
		return err
	}
	defer b.close()
	for _, p := range products {
		if err := b.row(p.SKU, p.Name, p.Description, p.Unit,
			num(p.UnitPrice), num(p.Cost), num(p.ReorderLevel), p.Status); err != nil {
			return err
		}
	}
	return b.write(w)
}

func WriteTrialBalance(w io.Writer, tb core.TrialBalance) error {
	b, err := newBook("Trial Balance", []string{"Code", "Account", "Debit", "Credit"})
	if err != nil {
		return err
	}
	defer b.close()
	for _, l := range tb.Accounts {
		if err := b.row(l.AccountCode, l.AccountName, num(l.Debit), num(l.Credit)); err != nil {
			return err
		}
	}
	if err := b.total("Total", num(tb.TotalDebits), num(tb.TotalCredits)); err != nil {
		return err
	}
	if err := b.note("As of " + tb.AsOfDate); err != nil {
		return err
	}
	return b.write(w)
}

func WriteBalanceSheet(w io.Writer, bs core.BalanceSheet) error {
	b, err := newBook("Balance Sheet", []string{"Section", "Code", "Account", "Balance"})
	if err != nil {
		return err
	}
	defer b.close()
	sections := []struct {
		name  string
		lines []core.AccountBalance
		total decimal.Decimal
	}{
		{"Assets", bs.Assets, bs.TotalAssets},
		{"Liabilities", bs.Liabilities, bs.TotalLiabilities},
		{"Equity", bs.Equity, bs.TotalEquity},
	}
	for _, s := range sections {
		for _, l := range s.lines {
			if err := b.row(s.name, l.AccountCode, l.AccountName, num(l.Balance)); err != nil {
				return err
			}
		}
		if err := b.total("Total "+strings.ToLower(s.name), "", "", num(s.total)); err != nil {
			return err
		}
	}
	if err := b.note("As of " + bs.AsOfDate); err != nil {
		return err
	}
	return b.write(w)
}

func WriteProfitAndLoss(w io.Writer, pl core.ProfitAndLoss) error {
	b, err := newBook("Profit and Loss", []string{"Section", "Code", "Account", "Amount"})
	if err != nil {
		return err
	}
	defer b.close()
	for _, l := range pl.Revenue {
		if err := b.row("Revenue", l.AccountCode, l.AccountName, num(l.Balance)); err != nil {
			return err
		}
	}
	if err := b.total("Total revenue", "", "", num(pl.TotalRevenue)); err != nil {
		return err
	}
	for _, l := range pl.Expenses {
		if err := b.row("Expenses", l.AccountCode, l.AccountName, num(l.Balance)); err != nil {
			return err
		}
	}
	if err := b.total("Total expenses", "", "", num(pl.TotalExpenses)); err != nil {
		return err
	}
	if err := b.total("Net income", "", "", num(pl.NetIncome)); err != nil {
		return err
	}
	period := strings.TrimSpace(pl.FromDate + " to " + pl.ToDate)
	if err := b.note("Period " + period); err != nil {
		return err
	}
	return b.write(w)
}

// num stores money as a spreadsheet number rounded to cents.
func num(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// book is a single-sheet workbook written row by row.
type book struct {
	f     *excelize.File
	sheet string
	next  int
	bold  int
}

func newBook(sheet string, header []string) (*book, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create style: %w", err)
	}
	b := &book{f: f, sheet: sheet, next: 1, bold: bold}
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := b.styledRow(cells, true); err != nil {
		_ = f.Close()
		return nil, err
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	_ = f.SetColWidth(sheet, "A", last, 18)
	return b, nil
}

func (b *book) row(cells ...any) error { return b.styledRow(cells, false) }

func (b *book) total(cells ...any) error { return b.styledRow(cells, true) }

func (b *book) note(text string) error {
	b.next++ // blank spacer row
	return b.styledRow([]any{text}, false)
}

func (b *book) styledRow(cells []any, bold bool) error {
	start, err := excelize.CoordinatesToCellName(1, b.next)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := b.f.SetSheetRow(b.sheet, start, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", b.next, err)
	}
	if bold {
		end, _ := excelize.CoordinatesToCellName(len(cells), b.next)
		if err := b.f.SetCellStyle(b.sheet, start, end, b.bold); err != nil {
			return fmt.Errorf("style row %d: %w", b.next, err)
		}
	}
	b.next++
	return nil
}

func (b *book) write(w io.Writer) error {
	if err := b.f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (b *book) close() { _ = b.f.Close() }
