// Package report renders date-bounded exports of the ledger.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"chitieu/internal/core"

	"github.com/xuri/excelize/v2"
)

const utf8BOM = "\uFEFF"

var header = []string{"Ngày", "Mô tả", "Loại", "Danh mục", "Số tiền"}

// Report is the materialized content of one export.
type Report struct {
	Name  string
	Start core.Date
	End   core.Date
	Rows  []core.Transaction
	Total core.Totals
}

// Build selects the records of txs dated within [start, end], oldest first.
// It returns core.ErrEmptyResult when nothing matches.
func Build(txs []core.Transaction, start, end core.Date) (*Report, error) {
	rows := core.SortChronological(core.FilterRange(txs, start, end))
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", core.ErrEmptyResult, start, end)
	}
	return &Report{
		Name:  CustomPeriod(start, end).FileName(),
		Start: start,
		End:   end,
		Rows:  rows,
		Total: core.SumByType(rows),
	}, nil
}

// BuildPeriod is Build over the range of p, named after p.
func BuildPeriod(txs []core.Transaction, p Period) (*Report, error) {
	start, end := p.Range()
	r, err := Build(txs, start, end)
	if err != nil {
		return nil, err
	}
	r.Name = p.FileName()
	return r, nil
}

// Empty is the report of a period without records: the header and zero
// totals. Sinks that mirror a period write it to blank out stale rows.
func Empty(p Period) *Report {
	start, end := p.Range()
	return &Report{Name: p.FileName(), Start: start, End: end}
}

// FormatReport renders the CSV export of txs for [start, end].
func FormatReport(txs []core.Transaction, start, end core.Date) ([]byte, error) {
	r, err := Build(txs, start, end)
	if err != nil {
		return nil, err
	}
	return r.CSV()
}

// Table returns the export as rows of cells: header, one row per record, an
// empty separator row and the four per-type totals.
func (r *Report) Table() [][]string {
	out := make([][]string, 0, len(r.Rows)+6)
	out = append(out, header)
	for _, t := range r.Rows {
		out = append(out, []string{
			t.Date.Key(),
			strings.ReplaceAll(t.Description, ",", " "),
			string(t.Type),
			string(t.Category),
			t.Amount.String(),
		})
	}
	out = append(out, nil)
	for _, s := range r.totalRows() {
		out = append(out, []string{s.label, "", "", "", s.amount.String()})
	}
	return out
}

type totalRow struct {
	label  string
	amount core.Money
}

func (r *Report) totalRows() []totalRow {
	return []totalRow{
		{"Tổng thu", r.Total.Income},
		{"Tổng chi", r.Total.Expense},
		{"Tổng tiết kiệm", r.Total.Saving},
		{"Tổng đầu tư", r.Total.Investment},
	}
}

// CSV encodes the report as UTF-8 CSV with a byte order mark so that
// spreadsheet tools pick the right encoding.
func (r *Report) CSV() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	for _, row := range r.Table() {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName is the worksheet title used for XLSX and Google Sheets output.
func (r *Report) SheetName() string {
	// Sheet titles are limited to 31 characters.
	name := r.Name
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// XLSX encodes the report as an Excel workbook with numeric amount cells.
func (r *Report) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := r.SheetName()
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, v)
	}

	for i, h := range header {
		if err := set(i+1, 1, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	row := 2
	for _, t := range r.Rows {
		cells := []any{t.Date.Key(), t.Description, string(t.Type), string(t.Category), int64(t.Amount)}
		for i, v := range cells {
			if err := set(i+1, row, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
		row++
	}
	row++
	for _, s := range r.totalRows() {
		if err := set(1, row, s.label); err != nil {
			return nil, fmt.Errorf("write totals: %w", err)
		}
		if err := set(5, row, int64(s.amount)); err != nil {
			return nil, fmt.Errorf("write totals: %w", err)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 36)
	_ = f.SetColWidth(sheet, "C", "D", 18)
	_ = f.SetColWidth(sheet, "E", "E", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode renders the report in the given format ("csv" or "xlsx").
func (r *Report) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return r.CSV()
	case FormatXLSX:
		return r.XLSX()
	default:
		return nil, &core.ValidationError{Index: -1, Field: "format", Reason: "unsupported value " + strconv.Quote(string(format))}
	}
}
