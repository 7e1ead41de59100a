package spreadsheet

import (
	"bytes"
	"errors"
	"testing"

	"erp-server/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf
}

func TestReadProducts(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Name", "SKU", "unit_price", "Cost", "unit"},
		{"Widget", "W-1", "12.50", "7", "pcs"},
		{"", "", "", "", ""},
		{"Gadget", "G-1", "", "", ""},
	})
	got, err := ReadProducts(buf)
	if err != nil {
		t.Fatalf("ReadProducts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].SKU != "W-1" || got[0].Name != "Widget" || got[0].Unit != "pcs" {
		t.Errorf("first row = %+v", got[0])
	}
	if got[0].UnitPrice == nil || !got[0].UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("unit_price = %v, want 12.50", got[0].UnitPrice)
	}
	if got[1].UnitPrice != nil || got[1].Cost != nil {
		t.Errorf("blank amounts should stay nil, got %+v", got[1])
	}
}

func TestReadProductsRejects(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
	}{
		{"missing sku column", [][]any{{"name", "unit"}, {"Widget", "pcs"}}},
		{"bad price", [][]any{{"sku", "name", "unit_price"}, {"W-1", "Widget", "twelve"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadProducts(workbook(t, tt.rows))
			if !errors.Is(err, core.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	t.Run("not a workbook", func(t *testing.T) {
		_, err := ReadProducts(bytes.NewBufferString("sku,name\nW-1,Widget\n"))
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})
}

func TestExportCanBeReimported(t *testing.T) {
	products := []core.Product{
		{SKU: "W-1", Name: "Widget", Unit: "pcs", UnitPrice: decimal.RequireFromString("12.5"), Cost: decimal.NewFromInt(7), Status: "Active"},
	}
	buf := &bytes.Buffer{}
	if err := WriteProducts(buf, products); err != nil {
		t.Fatalf("WriteProducts: %v", err)
	}
	got, err := ReadProducts(buf)
	if err != nil {
		t.Fatalf("ReadProducts: %v", err)
	}
	if len(got) != 1 || got[0].SKU != "W-1" || !got[0].Cost.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("reimported = %+v", got)
	}
}

func TestWriteTrialBalance(t *testing.T) {
	tb := core.TrialBalance{
		AsOfDate: "2026-03-31",
		Accounts: []core.TrialBalanceLine{
			{AccountCode: "1000", AccountName: "Cash", Debit: decimal.NewFromInt(500)},
			{AccountCode: "4000", AccountName: "Sales", Credit: decimal.NewFromInt(500)},
		},
		TotalDebits:  decimal.NewFromInt(500),
		TotalCredits: decimal.NewFromInt(500),
	}
	buf := &bytes.Buffer{}
	if err := WriteTrialBalance(buf, tb); err != nil {
		t.Fatalf("WriteTrialBalance: %v", err)
	}
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows("Trial Balance")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	// header, two accounts, total, spacer, note
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6: %v", len(rows), rows)
	}
	if rows[3][0] != "Total" || rows[3][1] != "500" {
		t.Errorf("total row = %v", rows[3])
	}
	if rows[5][0] != "As of 2026-03-31" {
		t.Errorf("note row = %v", rows[5])
	}
}
