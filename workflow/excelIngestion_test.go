package workflow

import (
	"testing"
	"time"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name for (%d,%d): %v", j, i, err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set cell %s: %v", cell, err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParseReportRows_ReadsAccountRows(t *testing.T) {
	content := buildWorkbook(t, [][]string{
		{"Zesha End of Shift Report", "", "", ""},
		{"ACCOUNT", "FLOAT", "CASH", "GRAND TOTAL"},
		{"AIRTEL", "1,200,000.00", "300,000.00", "1,500,000.00"},
		{"MTN", "900,000.50", "100,000.00", ""}, // blank grand total falls back to float+cash
	})

	rows, err := ParseReportRows(content)
	if err != nil {
		t.Fatalf("ParseReportRows error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("parsed %d rows, want 2", len(rows))
	}

	if rows[0].AccountName != "AIRTEL" {
		t.Fatalf("row 0 account = %q, want AIRTEL", rows[0].AccountName)
	}
	if !rows[0].TotalFloat.Equal(dec(t, "1200000.00")) || !rows[0].GrandTotal.Equal(dec(t, "1500000.00")) {
		t.Fatalf("row 0 = %+v, comma-formatted cells misparsed", rows[0])
	}
	if !rows[1].GrandTotal.Equal(dec(t, "1000000.50")) {
		t.Fatalf("row 1 grand total = %s, want float+cash fallback 1000000.50", rows[1].GrandTotal)
	}
}

func TestParseReportRows_StopsAtSummaryRow(t *testing.T) {
	content := buildWorkbook(t, [][]string{
		{"ACCOUNT", "FLOAT", "CASH", "GRAND TOTAL"},
		{"AIRTEL", "100.00", "50.00", "150.00"},
		{"TOTAL", "100.00", "50.00", "150.00"},
		{"AIRTEL", "999.00", "999.00", "999.00"}, // past the summary line, must be ignored
	})

	rows, err := ParseReportRows(content)
	if err != nil {
		t.Fatalf("ParseReportRows error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("parsed %d rows, want 1 (summary row terminates the table)", len(rows))
	}
}

func TestParseReportRows_RejectsFilesWithoutHeader(t *testing.T) {
	content := buildWorkbook(t, [][]string{
		{"just", "some", "cells"},
		{"no", "header", "row"},
	})
	if _, err := ParseReportRows(content); err == nil {
		t.Fatal("expected a validation error for a file without an ACCOUNT/GRAND TOTAL header")
	}

	empty := buildWorkbook(t, [][]string{
		{"ACCOUNT", "FLOAT", "CASH", "GRAND TOTAL"},
	})
	if _, err := ParseReportRows(empty); err == nil {
		t.Fatal("expected a validation error for a header with no account rows")
	}
}

func TestParseReportRows_RejectsUnreadableBytes(t *testing.T) {
	if _, err := ParseReportRows([]byte("this is not a workbook")); err == nil {
		t.Fatal("expected a validation error for non-xlsx bytes")
	}
}

func TestParseReportRows_RejectsBadNumericCell(t *testing.T) {
	content := buildWorkbook(t, [][]string{
		{"ACCOUNT", "FLOAT", "CASH", "GRAND TOTAL"},
		{"AIRTEL", "not a number", "50.00", "150.00"},
	})
	if _, err := ParseReportRows(content); err == nil {
		t.Fatal("expected a validation error for an unparseable FLOAT cell")
	}
}

func TestDeriveReportWindow_NoonBoundaryInCompanyTimezone(t *testing.T) {
	// Africa/Kampala is UTC+3: 08:59Z is 11:59 local, 09:00Z is 12:00 local.
	cases := []struct {
		instant   time.Time
		wantShift models.ShiftType
	}{
		{time.Date(2026, 3, 10, 8, 59, 0, 0, time.UTC), models.ShiftTypeAM},
		{time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), models.ShiftTypePM},
		{time.Date(2026, 3, 10, 20, 59, 0, 0, time.UTC), models.ShiftTypePM}, // 23:59 local
	}

	for _, tc := range cases {
		date, shift, err := DeriveReportWindow(tc.instant, "Africa/Kampala")
		if err != nil {
			t.Fatalf("DeriveReportWindow(%s) error: %v", tc.instant, err)
		}
		if shift != tc.wantShift {
			t.Fatalf("DeriveReportWindow(%s) shift = %s, want %s", tc.instant, shift, tc.wantShift)
		}
		want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		if !date.Equal(want) {
			t.Fatalf("DeriveReportWindow(%s) date = %s, want %s", tc.instant, date, want)
		}
	}
}

func TestDeriveReportWindow_CrossesDateLineInLocalTime(t *testing.T) {
	// 22:30Z on the 9th is 01:30 on the 10th in Kampala: the window belongs
	// to the local calendar day.
	date, shift, err := DeriveReportWindow(time.Date(2026, 3, 9, 22, 30, 0, 0, time.UTC), "Africa/Kampala")
	if err != nil {
		t.Fatalf("DeriveReportWindow error: %v", err)
	}
	if shift != models.ShiftTypeAM {
		t.Fatalf("shift = %s, want AM", shift)
	}
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !date.Equal(want) {
		t.Fatalf("date = %s, want %s", date, want)
	}
}

func TestDeriveReportWindow_InvalidTimezone(t *testing.T) {
	if _, _, err := DeriveReportWindow(time.Now(), "Not/AZone"); err == nil {
		t.Fatal("expected an error for an unknown timezone")
	}
}
